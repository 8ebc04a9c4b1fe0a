package serving

import (
	"context"
	"log"
	"time"

	"github.com/opst/mlci/pkg/utils/filewatch"
)

// Watch reloads the model into holder each time files in dir are modified, until ctx is done.
//
// Failures of reloading are logged and the current model is kept.
func Watch(ctx context.Context, logger *log.Logger, holder *Holder, dir string, settle time.Duration) error {
	return filewatch.OnModify(
		ctx, settle,
		func(_ context.Context, cause error) error {
			logger.Printf("model directory is modified: %v", cause)
			if err := holder.Reload(dir); err != nil {
				logger.Printf("failed to reload model (keep serving the current one): %v", err)
				return nil
			}
			logger.Printf("model is reloaded from %s", dir)
			return nil
		},
		dir,
	)
}
