// Package instances stores the configuration of one placement of the
// app's action service inside an installation: the Eloqua-side record
// definition plus our own custom settings (the selected Qondor project).
package instances

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/store"
)

// Definition is the configuration Eloqua holds for an action instance.
type Definition struct {
	RecordDefinition      map[string]string `json:"recordDefinition"`
	RequiresConfiguration bool              `json:"requiresConfiguration"`
}

type Instance struct {
	AppID        string            `json:"app_id"`
	InstallID    string            `json:"install_id"`
	InstanceID   string            `json:"instance_id"`
	Eloqua       Definition        `json:"eloqua"`
	Custom       map[string]string `json:"custom,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

type Repo struct {
	store   store.Store
	log     zerolog.Logger
	nowFunc func() time.Time
}

func NewRepo(s store.Store, log zerolog.Logger) *Repo {
	return &Repo{store: s, log: log, nowFunc: time.Now}
}

// Save upserts the instance record, merging non-empty parts of incoming
// onto any existing record. Custom keys are merged individually when
// partial is set, replaced wholesale otherwise.
func (r *Repo) Save(ctx context.Context, incoming Instance, partial bool) error {
	var existing Instance
	id, err := r.store.FindOne(ctx, store.Instances, r.match(incoming.AppID, incoming.InstallID, incoming.InstanceID), &existing)
	if apperr.Is(err, apperr.ErrNotFound) {
		incoming.LastModified = r.nowFunc()
		if _, err := r.store.Insert(ctx, store.Instances, incoming, store.NoTTL); err != nil {
			return errors.Wrap(err, "[Repo.Save] insert")
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Repo.Save] find")
	}

	if incoming.Eloqua.RecordDefinition != nil {
		existing.Eloqua = incoming.Eloqua
	}
	if incoming.Custom != nil {
		if partial {
			if existing.Custom == nil {
				existing.Custom = map[string]string{}
			}
			for k, v := range incoming.Custom {
				existing.Custom[k] = v
			}
		} else {
			existing.Custom = incoming.Custom
		}
	}
	existing.LastModified = r.nowFunc()

	if _, err := r.store.Replace(ctx, store.Instances, id, existing, store.NoTTL); err != nil {
		return errors.Wrap(err, "[Repo.Save] replace")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, appID, installID, instanceID string) (Instance, error) {
	var inst Instance
	_, err := r.store.FindOne(ctx, store.Instances, r.match(appID, installID, instanceID), &inst)
	if err != nil {
		return Instance{}, err
	}
	return inst, nil
}

// CustomConfig returns the instance's custom settings, or an empty map
// when the instance is unknown.
func (r *Repo) CustomConfig(ctx context.Context, appID, installID, instanceID string) (map[string]string, error) {
	inst, err := r.Get(ctx, appID, installID, instanceID)
	if apperr.Is(err, apperr.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if inst.Custom == nil {
		return map[string]string{}, nil
	}
	return inst.Custom, nil
}

func (r *Repo) Delete(ctx context.Context, appID, installID, instanceID string) (bool, error) {
	var inst Instance
	id, err := r.store.FindOne(ctx, store.Instances, r.match(appID, installID, instanceID), &inst)
	if apperr.Is(err, apperr.ErrNotFound) {
		r.log.Warn().Str("instance_id", instanceID).Str("install_id", installID).Msg("couldn't delete instance")
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Repo.Delete] find")
	}
	return r.store.Delete(ctx, store.Instances, id)
}

func (r *Repo) match(appID, installID, instanceID string) store.Fields {
	return store.Fields{
		"app_id":      appID,
		"install_id":  installID,
		"instance_id": instanceID,
	}
}
