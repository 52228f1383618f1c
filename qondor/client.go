// Package qondor is a client for the Qondor event-registration REST API.
// Authentication is a static subscription key header; the API has no
// notion of our installations, so one client serves all of them.
package qondor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// CompanyFieldHeading is the custom participant field Qondor's built-in
// company field is replaced with. Created on demand per project.
const CompanyFieldHeading = "Kommune/virksomhet"

type Client struct {
	hc       *http.Client
	endpoint string
	key      string
	log      zerolog.Logger
}

func NewClient(hc *http.Client, endpoint, key string, log zerolog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc, endpoint: strings.TrimSuffix(endpoint, "/"), key: key, log: log}
}

type Project struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// Participant is the subset of Qondor's participant document we write.
type Participant struct {
	FirstName string            `json:"firstName,omitempty"`
	LastName  string            `json:"lastName,omitempty"`
	Email     string            `json:"email,omitempty"`
	Company   string            `json:"company,omitempty"`
	ProjectID string            `json:"projectId,omitempty"`
	Reference string            `json:"reference,omitempty"`
	Fields    map[string]string `json:"participantFields,omitempty"`
}

func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/Project/v1/Project/GetAll", nil, &projects); err != nil {
		return nil, errors.Wrap(err, "[Projects] get")
	}
	return projects, nil
}

// Participants returns the project's registered participants as an
// email-to-reference map, used to decide between add and update.
func (c *Client) Participants(ctx context.Context, projectID string) (map[string]string, error) {
	var raw []struct {
		Email     string `json:"email"`
		Reference string `json:"participantReference"`
	}
	path := "/Participant/v1/Participant/GetForProject?projectId=" + url.QueryEscape(projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, errors.Wrap(err, "[Participants] get")
	}

	existing := make(map[string]string, len(raw))
	for _, p := range raw {
		existing[p.Email] = p.Reference
	}
	return existing, nil
}

// EnsureCompanyField creates the custom company participant field on the
// project unless it already exists.
func (c *Client) EnsureCompanyField(ctx context.Context, projectID string) error {
	var fields []struct {
		Heading string `json:"heading"`
	}
	path := "/Participant/v1/ParticipantField/GetForProject?projectId=" + url.QueryEscape(projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &fields); err != nil {
		return errors.Wrap(err, "[EnsureCompanyField] list fields")
	}
	for _, f := range fields {
		if f.Heading == CompanyFieldHeading {
			return nil
		}
	}

	body := map[string]string{
		"projectId": projectID,
		"heading":   CompanyFieldHeading,
	}
	if err := c.do(ctx, http.MethodPost, "/Participant/v1/ParticipantField", body, nil); err != nil {
		return errors.Wrap(err, "[EnsureCompanyField] create field")
	}
	return nil
}

// UpsertParticipant adds the participant to the project, or updates the
// registration when the email already appears in existing. Participants
// without both first and last name are rejected.
func (c *Client) UpsertParticipant(ctx context.Context, projectID string, existing map[string]string, p Participant) error {
	if p.FirstName == "" || p.LastName == "" {
		return errors.New("[UpsertParticipant] participant needs firstName and lastName")
	}
	if p.Company != "" {
		p.Fields = map[string]string{CompanyFieldHeading: p.Company}
	}

	if reference, ok := existing[p.Email]; ok {
		p.Reference = reference
		if err := c.do(ctx, http.MethodPut, "/Participant/v1/Participant", p, nil); err != nil {
			return errors.Wrapf(err, "[UpsertParticipant] update %q in project %s", p.Email, projectID)
		}
		return nil
	}

	p.ProjectID = projectID
	if err := c.do(ctx, http.MethodPost, "/Participant/v1/Participant", p, nil); err != nil {
		return errors.Wrapf(err, "[UpsertParticipant] add %q to project %s", p.Email, projectID)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
