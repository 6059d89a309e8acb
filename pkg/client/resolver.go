package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

/*
ResolveCard fetches an agent's card from its well-known location.  Agents
predating the current well-known path still answer on the deprecated one,
so a 404 triggers one fallback fetch.
*/
func ResolveCard(ctx context.Context, baseURL string, conn *http.Client) (*a2a.AgentCard, error) {
	if conn == nil {
		conn = http.DefaultClient
	}

	base := strings.TrimSuffix(baseURL, "/")
	card, err := fetchCard(ctx, conn, base+a2a.AgentCardPath)

	var httpErr *HTTPError

	if stderrors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		log.Warn(
			"agent card missing from well-known path, trying deprecated path",
			"url", base+a2a.AgentCardPath,
		)

		return fetchCard(ctx, conn, base+a2a.DeprecatedAgentCardPath)
	}

	return card, err
}

func fetchCard(ctx context.Context, conn *http.Client, url string) (*a2a.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	res, err := conn.Do(req)

	if err != nil {
		return nil, asCallError(err)
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)

	if err != nil {
		return nil, asCallError(err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, newHTTPError(res, body)
	}

	card := new(a2a.AgentCard)

	if err := json.Unmarshal(body, card); err != nil {
		return nil, &JSONError{Err: err}
	}

	return card, nil
}
