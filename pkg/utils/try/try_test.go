package try_test

import (
	"errors"
	"testing"

	"github.com/opst/mlci/pkg/utils/try"
)

type fataler struct {
	fatal  [][]any
	helper uint
}

func (f *fataler) Fatal(args ...any) {
	f.fatal = append(f.fatal, args)
}

func (f *fataler) Helper() {
	f.helper += 1
}

func TestTry(t *testing.T) {
	t.Run("when it does not have error,", func(t *testing.T) {
		testee := try.To("model.json", nil)

		f := &fataler{}
		if actual := testee.OrFatal(f); actual != "model.json" {
			t.Errorf("OrFatal: %s", actual)
		}
		if len(f.fatal) != 0 || f.helper != 0 {
			t.Errorf("Fatal or Helper is called: %+v", f)
		}
		if actual := testee.OrDefault("default"); actual != "model.json" {
			t.Errorf("OrDefault: %s", actual)
		}
		if v, err := testee.Get(); v != "model.json" || err != nil {
			t.Errorf("Get: (%s, %v)", v, err)
		}
	})

	t.Run("when it has error,", func(t *testing.T) {
		expectedErr := errors.New("fake error")
		testee := try.To("model.json", expectedErr)

		f := &fataler{}
		if actual := testee.OrFatal(f); actual != "" {
			t.Errorf("OrFatal: %s", actual)
		}
		if len(f.fatal) != 1 || f.fatal[0][0] != expectedErr {
			t.Errorf("Fatal: %v", f.fatal)
		}
		if f.helper != 1 {
			t.Errorf("Helper: %d times", f.helper)
		}
		if actual := testee.OrDefault("default"); actual != "default" {
			t.Errorf("OrDefault: %s", actual)
		}
		if v, err := testee.Get(); v != "" || !errors.Is(err, expectedErr) {
			t.Errorf("Get: (%s, %v)", v, err)
		}
	})
}
