package polling

import (
	"context"
	"fmt"
	"net/http"

	"pollster/internal/httpclient"
	"pollster/internal/models"
)

// Initiator submits job payloads to a kind's start endpoint.
type Initiator struct {
	client httpclient.Doer
}

func NewInitiator(client httpclient.Doer) *Initiator {
	return &Initiator{client: client}
}

type startResponse struct {
	Token string `json:"token"`
}

// Start posts payload and returns the job token. Failures are not retried.
func (i *Initiator) Start(ctx context.Context, kind Kind, payload any) (string, error) {
	resp, err := i.client.Do(ctx, &httpclient.Request{
		Method: http.MethodPost,
		Path:   kind.StartPath,
		Body:   payload,
	})
	if err != nil {
		return "", fmt.Errorf("start %s job: %w", kind.Name, signedOut(err))
	}

	var out startResponse
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("start %s job: %w", kind.Name, err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("start %s job: %w", kind.Name, models.ErrEmptyToken)
	}
	return out.Token, nil
}
