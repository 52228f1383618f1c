// Package eloqua is a thin client for the slices of the Eloqua REST API
// this app touches: the login identity endpoint, the cloud action
// instance resource, and the bulk contact sync-action flow used to report
// per-contact execution status back to a running campaign.
package eloqua

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultRecordDefinition enumerates the contact fields the action
// requests from Eloqua in every notification.
func DefaultRecordDefinition() map[string]string {
	return map[string]string{
		"id":        "{{Contact.Id}}",
		"email":     "{{Contact.Field(C_EmailAddress)}}",
		"firstName": "{{Contact.Field(C_FirstName)}}",
		"lastName":  "{{Contact.Field(C_LastName)}}",
		"company":   "{{Contact.Field(C_Company)}}",
	}
}

// Client talks to one installation's Eloqua instance. hc must inject the
// installation's bearer token (see tokens.Manager.Source); baseURL is the
// per-installation REST base learned from the identity endpoint.
type Client struct {
	hc      *http.Client
	baseURL string
	log     zerolog.Logger
}

func NewClient(hc *http.Client, baseURL string, log zerolog.Logger) *Client {
	return &Client{hc: hc, baseURL: strings.TrimSuffix(baseURL, "/"), log: log}
}

// Identity is the subset of the login identity document we read.
type Identity struct {
	URLs struct {
		Base string `json:"base"`
	} `json:"urls"`
}

// FetchIdentity resolves the installation's REST base URL from the
// central identity endpoint. It is the one call made against the login
// host rather than the installation's own base URL.
func FetchIdentity(ctx context.Context, hc *http.Client, identityURL string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identityURL, nil)
	if err != nil {
		return Identity{}, errors.Wrap(err, "[FetchIdentity] build request")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Identity{}, errors.Wrap(err, "[FetchIdentity] get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, errors.Errorf("[FetchIdentity] unexpected status %d", resp.StatusCode)
	}
	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, errors.Wrap(err, "[FetchIdentity] decode")
	}
	return id, nil
}

// PutInstanceConfig updates the action instance's record definition on
// the Eloqua side.
func (c *Client) PutInstanceConfig(ctx context.Context, instanceID string, recordDefinition map[string]string, requiresConfiguration bool) error {
	body := map[string]any{
		"recordDefinition":      recordDefinition,
		"requiresConfiguration": requiresConfiguration,
	}
	url := fmt.Sprintf("%s/api/cloud/1.0/actions/instances/%s", c.baseURL, instanceID)
	return c.do(ctx, http.MethodPut, url, body, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.do] marshal body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, "[Client.do] build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] %s %s", method, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("[Client.do] %s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "[Client.do] decode response")
		}
	}
	return nil
}
