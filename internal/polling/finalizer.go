package polling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pollster/internal/httpclient"
	"pollster/internal/models"
)

// Finalizer fetches the result of a completed job from its end endpoint.
type Finalizer struct {
	client httpclient.Doer
}

func NewFinalizer(client httpclient.Doer) *Finalizer {
	return &Finalizer{client: client}
}

type endResponse struct {
	Response json.RawMessage `json:"response"`
}

// Finalize calls the end endpoint once. A missing or falsy response field
// yields models.ErrEmptyResult.
func (f *Finalizer) Finalize(ctx context.Context, kind Kind, token string) (json.RawMessage, error) {
	resp, err := f.client.Do(ctx, &httpclient.Request{Method: kind.Method, Path: kind.EndURL(token)})
	if err != nil {
		return nil, fmt.Errorf("end %s job: %w", kind.Name, signedOut(err))
	}

	var out endResponse
	if err := resp.Decode(&out); err != nil {
		log.Warnf("Undecodable end response for %s job %s: %v", kind.Name, token, err)
		return nil, models.ErrEmptyResult
	}
	if isFalsy(out.Response) {
		log.Warnf("End response for %s job %s carried no result", kind.Name, token)
		return nil, models.ErrEmptyResult
	}
	return out.Response, nil
}

func isFalsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}
