package gpu

import (
	"errors"
	"sync"
	"testing"
)

func TestInitGLErrorIsSticky(t *testing.T) {
	t.Cleanup(func() {
		glInitOnce = sync.Once{}
		glInitErr = nil
	})
	failed := errors.New("no GL library")
	glInitOnce.Do(func() { glInitErr = failed })

	for i := 0; i < 3; i++ {
		if err := initGL(); !errors.Is(err, failed) {
			t.Errorf("initGL() call %d error = %v, want %v", i+1, err, failed)
		}
	}
}
