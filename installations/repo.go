// Package installations persists one record per activation of the app in
// a host Eloqua install, identified by (app_id, install_id). The record
// owns the installation's OAuth token and base URL; no other component
// holds authoritative state.
package installations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/store"
)

type Installation struct {
	AppID       string `json:"app_id"`
	InstallID   string `json:"install_id"`
	Name        string `json:"_name,omitempty"`
	SiteID      string `json:"site_id,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	UserName    string `json:"user_name,omitempty"`
	UserCulture string `json:"user_culture,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	OAuth       OAuth  `json:"oauth"`
}

// OAuth wraps the bearer token document. The token is opaque to us: we
// store and retrieve it, never inspect its fields.
type OAuth struct {
	Token *oauth2.Token `json:"token,omitempty"`
}

type Repo struct {
	store store.Store
	log   zerolog.Logger
}

func NewRepo(s store.Store, log zerolog.Logger) *Repo {
	return &Repo{store: s, log: log}
}

// Upsert creates or updates the record matching inst.InstallID, setting
// the provided metadata fields and leaving base_url and the token
// untouched on update. Matches the install webhook, which may fire again
// for an existing installation.
func (r *Repo) Upsert(ctx context.Context, inst Installation) error {
	var existing Installation
	id, err := r.store.FindOne(ctx, store.Installations, store.Fields{"install_id": inst.InstallID}, &existing)
	if apperr.Is(err, apperr.ErrNotFound) {
		if _, err := r.store.Insert(ctx, store.Installations, inst, store.NoTTL); err != nil {
			return errors.Wrap(err, "[Repo.Upsert] insert")
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Repo.Upsert] find")
	}

	merged := merge(existing, inst)
	if _, err := r.store.Replace(ctx, store.Installations, id, merged, store.NoTTL); err != nil {
		return errors.Wrap(err, "[Repo.Upsert] replace")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, appID, installID string) (Installation, error) {
	inst, _, err := r.find(ctx, appID, installID)
	return inst, err
}

// SetBaseURL persists the installation's REST base URL, learned from the
// identity endpoint after the OAuth callback. ErrInstallationNotFound
// here means the install webhook and the callback disagree about the
// installation, which should never happen in normal operation.
func (r *Repo) SetBaseURL(ctx context.Context, appID, installID, baseURL string) error {
	return r.update(ctx, appID, installID, func(inst *Installation) {
		inst.BaseURL = baseURL
	})
}

// GetToken returns the stored bearer token, or nil when none has been
// stored yet.
func (r *Repo) GetToken(ctx context.Context, appID, installID string) (*oauth2.Token, error) {
	inst, _, err := r.find(ctx, appID, installID)
	if apperr.Is(err, apperr.ErrInstallationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inst.OAuth.Token, nil
}

func (r *Repo) SetToken(ctx context.Context, appID, installID string, token *oauth2.Token) error {
	return r.update(ctx, appID, installID, func(inst *Installation) {
		inst.OAuth.Token = token
	})
}

// Delete removes the installation on the uninstall webhook. Returns false
// when nothing matched.
func (r *Repo) Delete(ctx context.Context, appID, installID string) (bool, error) {
	var inst Installation
	id, err := r.store.FindOne(ctx, store.Installations, store.Fields{
		"app_id":     appID,
		"install_id": installID,
	}, &inst)
	if apperr.Is(err, apperr.ErrNotFound) {
		r.log.Warn().Str("app_id", appID).Str("install_id", installID).Msg("couldn't delete installation")
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Repo.Delete] find")
	}
	return r.store.Delete(ctx, store.Installations, id)
}

func (r *Repo) find(ctx context.Context, appID, installID string) (Installation, string, error) {
	var inst Installation
	id, err := r.store.FindOne(ctx, store.Installations, store.Fields{
		"app_id":     appID,
		"install_id": installID,
	}, &inst)
	if apperr.Is(err, apperr.ErrNotFound) {
		return Installation{}, "", apperr.ErrInstallationNotFound
	}
	if err != nil {
		return Installation{}, "", errors.Wrap(err, "[Repo.find] find")
	}
	return inst, id, nil
}

// update applies fn to the matched record and writes it back whole.
// Last writer wins: concurrent updates to the same installation may
// clobber each other.
func (r *Repo) update(ctx context.Context, appID, installID string, fn func(*Installation)) error {
	inst, id, err := r.find(ctx, appID, installID)
	if err != nil {
		return err
	}
	fn(&inst)
	ok, err := r.store.Replace(ctx, store.Installations, id, inst, store.NoTTL)
	if err != nil {
		return errors.Wrap(err, "[Repo.update] replace")
	}
	if !ok {
		return apperr.ErrInstallationNotFound
	}
	return nil
}

func merge(existing, incoming Installation) Installation {
	out := existing
	out.AppID = incoming.AppID
	out.InstallID = incoming.InstallID
	if incoming.Name != "" {
		out.Name = incoming.Name
	}
	if incoming.SiteID != "" {
		out.SiteID = incoming.SiteID
	}
	if incoming.SiteName != "" {
		out.SiteName = incoming.SiteName
	}
	if incoming.UserID != "" {
		out.UserID = incoming.UserID
	}
	if incoming.UserName != "" {
		out.UserName = incoming.UserName
	}
	if incoming.UserCulture != "" {
		out.UserCulture = incoming.UserCulture
	}
	return out
}
