package serving

import (
	"sync/atomic"

	"github.com/opst/mlci/pkg/model"
)

// Holder holds the model which requests are served with.
//
// The model can be replaced while serving.
type Holder struct {
	m atomic.Pointer[model.Ensemble]
}

func NewHolder(m *model.Ensemble) *Holder {
	h := &Holder{}
	h.Set(m)
	return h
}

// Get returns the current model, or nil if no models are loaded.
func (h *Holder) Get() *model.Ensemble {
	return h.m.Load()
}

func (h *Holder) Set(m *model.Ensemble) {
	h.m.Store(m)
}

// Reload loads the model saved in dir and replaces the current one.
//
// On error, the current model is kept.
func (h *Holder) Reload(dir string) error {
	m, err := model.Load(dir)
	if err != nil {
		return err
	}
	h.Set(m)
	return nil
}
