// Package executions records one correlation unit per asynchronous
// notification batch, with a snapshot of the instance configuration at
// creation time. Records are write-once and expire after a day.
package executions

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/isotammi/qondor-cloudapp/store"
)

type Execution struct {
	ExecutionID    string            `json:"execution_id"`
	AppID          string            `json:"app_id"`
	InstallID      string            `json:"install_id"`
	InstanceID     string            `json:"instance_id"`
	InstanceConfig map[string]string `json:"instance_config,omitempty"`
	CreatedAt      time.Time         `json:"_created_at"`
}

type Repo struct {
	store store.Store
	ttl   time.Duration
}

func NewRepo(s store.Store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl}
}

func (r *Repo) Insert(ctx context.Context, e Execution) (string, error) {
	e.CreatedAt = time.Now()
	id, err := r.store.Insert(ctx, store.Executions, e, r.ttl)
	if err != nil {
		return "", errors.Wrap(err, "[Repo.Insert] store insert")
	}
	return id, nil
}

func (r *Repo) Get(ctx context.Context, executionID string) (Execution, error) {
	var e Execution
	_, err := r.store.FindOne(ctx, store.Executions, store.Fields{"execution_id": executionID}, &e)
	if err != nil {
		return Execution{}, err
	}
	return e, nil
}
