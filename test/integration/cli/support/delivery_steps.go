package support

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
)

const sheetToken = "integration-token"

// RegisterDeliverySteps registers steps around the sheet endpoint and the
// history.
func (testCtx *TestContext) RegisterDeliverySteps(sc *godog.ScenarioContext) {
	sc.Step(`^a sheet endpoint that answers ok$`, testCtx.aSheetEndpointThatAnswersOK)
	sc.Step(`^a sheet endpoint that cannot be reached$`, testCtx.aSheetEndpointThatCannotBeReached)
	sc.Step(`^the sheet endpoint should have received (\d+) records?$`, testCtx.theEndpointShouldHaveReceived)
	sc.Step(`^the last received record should have value "([^"]*)"$`, testCtx.theLastReceivedRecordShouldHaveValue)
	sc.Step(`^the history should hold (\d+) (sent|pending) entr(?:y|ies)$`, testCtx.theHistoryShouldHold)
	sc.Step(`^the latest entry should have no error$`, testCtx.theLatestEntryShouldHaveNoError)
	sc.Step(`^the latest entry should have error "([^"]*)"$`, testCtx.theLatestEntryShouldHaveError)
}

// startEndpoint starts a fake sheet web app and stores its URL in the
// settings.
func (testCtx *TestContext) startEndpoint() (*SheetEndpoint, error) {
	ep := &SheetEndpoint{}
	ep.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ep.mu.Lock()
		ep.received = append(ep.received, body)
		ep.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	testCtx.Endpoints = append(testCtx.Endpoints, ep)

	if _, err := testCtx.Run("settings", "save", "--script-url", ep.URL, "--token", sheetToken); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return ep, nil
}

func (testCtx *TestContext) aSheetEndpointThatAnswersOK() error {
	_, err := testCtx.startEndpoint()
	return err
}

// aSheetEndpointThatCannotBeReached leaves a closed server's URL in the
// settings so delivery fails at the transport level.
func (testCtx *TestContext) aSheetEndpointThatCannotBeReached() error {
	ep, err := testCtx.startEndpoint()
	if err != nil {
		return err
	}
	ep.Close()
	return nil
}

func (testCtx *TestContext) theEndpointShouldHaveReceived(n int) error {
	var total int
	for _, ep := range testCtx.Endpoints {
		total += len(ep.Received())
	}
	if total != n {
		return fmt.Errorf("expected %d records, received %d", n, total)
	}
	return nil
}

func (testCtx *TestContext) theLastReceivedRecordShouldHaveValue(value string) error {
	ep, err := testCtx.Endpoint()
	if err != nil {
		return err
	}
	got := ep.Received()
	if len(got) == 0 {
		return fmt.Errorf("the endpoint received nothing")
	}
	last := got[len(got)-1]
	if last["value"] != value {
		return fmt.Errorf("expected value %q, got %v", value, last["value"])
	}
	if last["token"] != sheetToken {
		return fmt.Errorf("expected token %q, got %v", sheetToken, last["token"])
	}
	return nil
}

func (testCtx *TestContext) history() ([]outbox.Entry, error) {
	out, err := testCtx.Run("history", "list", "--format", "json")
	if err != nil {
		return nil, err
	}
	var entries []outbox.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return entries, nil
}

func (testCtx *TestContext) theHistoryShouldHold(n int, status string) error {
	entries, err := testCtx.history()
	if err != nil {
		return err
	}
	var count int
	for _, e := range entries {
		if strings.EqualFold(string(e.Status), status) {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("expected %d %s entries, found %d of %d", n, status, count, len(entries))
	}
	return nil
}

func (testCtx *TestContext) latestEntry() (outbox.Entry, error) {
	entries, err := testCtx.history()
	if err != nil {
		return outbox.Entry{}, err
	}
	if len(entries) == 0 {
		return outbox.Entry{}, fmt.Errorf("the history is empty")
	}
	return entries[0], nil
}

func (testCtx *TestContext) theLatestEntryShouldHaveNoError() error {
	e, err := testCtx.latestEntry()
	if err != nil {
		return err
	}
	if e.Error != "" {
		return fmt.Errorf("expected no error, got %q", e.Error)
	}
	return nil
}

func (testCtx *TestContext) theLatestEntryShouldHaveError(expected string) error {
	e, err := testCtx.latestEntry()
	if err != nil {
		return err
	}
	if e.Error != expected {
		return fmt.Errorf("expected error %q, got %q", expected, e.Error)
	}
	return nil
}
