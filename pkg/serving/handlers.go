package serving

import (
	"bytes"
	"errors"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/opst/mlci/pkg/apierr"
	"github.com/opst/mlci/pkg/dataset"
	"github.com/opst/mlci/pkg/model"
)

const (
	PathPing        = "/ping"
	PathInvocations = "/invocations"

	MediaTypeCSV = "text/csv"
)

// Ping answers health checks of the platform.
func Ping(c echo.Context) error {
	return c.String(http.StatusOK, "\n")
}

// Invocations predicts targets for rows of features in CSV request body.
//
// Request body should be header-less CSV, with Content-Type text/csv.
// Response is CSV with one prediction per line, without header and index.
func Invocations(holder *Holder) echo.HandlerFunc {
	return func(c echo.Context) error {
		mediatype, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
		if err != nil || mediatype != MediaTypeCSV {
			return apierr.UnsupportedMediaType("CSV data only")
		}

		m := holder.Get()
		if m == nil {
			return apierr.ServiceUnavailable("model is not loaded", nil)
		}

		x, err := dataset.ParseFeatures(c.Request().Body)
		if err != nil {
			if errors.Is(err, dataset.ErrEmpty) {
				return apierr.BadRequest("no rows in request", err)
			}
			return apierr.BadRequest("malformed CSV", err)
		}

		pred, err := m.Predict(x)
		if err != nil {
			if errors.Is(err, model.ErrShape) {
				return apierr.NewErrorMessage(
					http.StatusBadRequest, "unexpected number of features",
					apierr.WithAdvice(
						"each row should have the features the model is trained with, without the target",
					),
					apierr.WithError(err),
				)
			}
			return apierr.InternalServerError(err)
		}

		buf := new(bytes.Buffer)
		if err := dataset.FormatPredictions(buf, pred); err != nil {
			return apierr.InternalServerError(err)
		}
		return c.Blob(http.StatusOK, MediaTypeCSV, buf.Bytes())
	}
}
