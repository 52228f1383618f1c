package server

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/isotammi/qondor-cloudapp/eloqua"
	"github.com/isotammi/qondor-cloudapp/executions"
	"github.com/isotammi/qondor-cloudapp/instances"
	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/qondor"
)

// CreateInstanceHandler answers the action service's create webhook with
// the default record definition. The instance stays unconfigured until a
// project is picked on the configure page, so Eloqua is told
// configuration is still required.
func (s *Server) CreateInstanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, installID := r.PathValue("app_id"), r.PathValue("install_id")
		instanceID := r.URL.Query().Get("instance_id")

		definition := instances.Definition{
			RecordDefinition:      eloqua.DefaultRecordDefinition(),
			RequiresConfiguration: true,
		}
		err := s.instances.Save(r.Context(), instances.Instance{
			AppID:      appID,
			InstallID:  installID,
			InstanceID: instanceID,
			Eloqua:     definition,
		}, false)
		if err != nil {
			s.log.Error().Err(err).Str("instance_id", instanceID).Msg("create: could not save instance")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		s.log.Info().Str("instance_id", instanceID).Str("install_id", installID).Msg("instance created")
		writeJSON(w, http.StatusOK, definition)
	}
}

// DeleteInstanceHandler answers the action service's delete webhook.
func (s *Server) DeleteInstanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, installID := r.PathValue("app_id"), r.PathValue("install_id")
		instanceID := r.URL.Query().Get("instance_id")

		deleted, err := s.instances.Delete(r.Context(), appID, installID, instanceID)
		if err != nil {
			s.log.Error().Err(err).Str("instance_id", instanceID).Msg("delete: could not delete instance")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "Unknown instance")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// configureForm is what the configure page's frontend renders: the
// selectable Qondor projects and the instance's saved settings.
type configureForm struct {
	Projects   []qondor.Project  `json:"projects"`
	FormValues map[string]string `json:"form_values"`
}

// ConfigureFormHandler serves the configure page data. The request is
// signed by Eloqua (the page URL is generated fresh per open), and the
// signature middleware has already started an authed session for the
// form post.
func (s *Server) ConfigureFormHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		appID, installID := r.PathValue("app_id"), r.PathValue("install_id")
		instanceID := r.PathValue("instance_id")

		projects, err := s.qondor.Projects(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("configure: could not list projects")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		custom, err := s.instances.CustomConfig(ctx, appID, installID, instanceID)
		if err != nil {
			s.log.Error().Err(err).Str("instance_id", instanceID).Msg("configure: could not load instance config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, configureForm{Projects: projects, FormValues: custom})
	}
}

// ConfigureSaveHandler saves the configure form: the selected Qondor
// project. The post is gated by the session the form load started, not by
// a signature. When the save changes the instance out of its unconfigured
// state the new definition is pushed to Eloqua so the campaign step goes
// active.
func (s *Server) ConfigureSaveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		appID, installID := r.PathValue("app_id"), r.PathValue("install_id")
		instanceID := r.PathValue("instance_id")

		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed form body")
			return
		}
		project := r.PostFormValue("project")
		if project == "" || project == "None" {
			writeError(w, http.StatusBadRequest, "Please select a project")
			return
		}

		existing, err := s.instances.Get(ctx, appID, installID, instanceID)
		if err != nil && !apperr.Is(err, apperr.ErrNotFound) {
			s.log.Error().Err(err).Str("instance_id", instanceID).Msg("configure: could not load instance")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		definition := instances.Definition{
			RecordDefinition:      eloqua.DefaultRecordDefinition(),
			RequiresConfiguration: false,
		}
		if !reflect.DeepEqual(existing.Eloqua, definition) {
			ec, err := s.eloquaClient(ctx, installID)
			if err != nil {
				s.log.Error().Err(err).Str("install_id", installID).Msg("configure: could not build eloqua client")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if err := ec.PutInstanceConfig(ctx, instanceID, definition.RecordDefinition, definition.RequiresConfiguration); err != nil {
				s.log.Error().Err(err).Str("instance_id", instanceID).Msg("configure: could not update instance on eloqua")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		err = s.instances.Save(ctx, instances.Instance{
			AppID:      appID,
			InstallID:  installID,
			InstanceID: instanceID,
			Eloqua:     definition,
			Custom:     map[string]string{"project": project},
		}, false)
		if err != nil {
			s.log.Error().Err(err).Str("instance_id", instanceID).Msg("configure: could not save instance")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		event := s.log.Info().Str("instance_id", instanceID).Str("project", project)
		if sess, ok := sessionFromContext(ctx); ok {
			event = event.Str("session_id", sess.ID)
		}
		event.Msg("instance configured")
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}

// notifyPayload is the contact batch Eloqua posts when the campaign step
// executes. Each item is shaped by the instance's record definition, so
// every field is a string keyed by the definition's field names.
type notifyPayload struct {
	TotalResults int                 `json:"totalResults"`
	Items        []map[string]string `json:"items"`
}

// NotifyHandler registers a batch of contacts as participants on the
// instance's Qondor project, then reports per-contact status back to
// Eloqua through the bulk sync-action flow. The whole batch is processed
// synchronously before the 204; Eloqua's notify timeout is generous
// enough for the batch sizes this app sees.
func (s *Server) NotifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		appID, installID := r.PathValue("app_id"), r.PathValue("install_id")
		instanceID := r.PathValue("instance_id")
		executionID := r.URL.Query().Get("execution_id")

		var payload notifyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed notification body")
			return
		}

		custom, err := s.instances.CustomConfig(ctx, appID, installID, instanceID)
		if err != nil {
			s.log.Error().Err(err).Str("instance_id", instanceID).Msg("notify: could not load instance config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if _, err := s.executions.Insert(ctx, executions.Execution{
			ExecutionID:    executionID,
			AppID:          appID,
			InstallID:      installID,
			InstanceID:     instanceID,
			InstanceConfig: custom,
		}); err != nil {
			s.log.Error().Err(err).Str("execution_id", executionID).Msg("notify: could not record execution")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		succeeded, errored := s.registerParticipants(ctx, custom["project"], payload.Items)

		ec, err := s.eloquaClient(ctx, installID)
		if err != nil {
			s.log.Error().Err(err).Str("install_id", installID).Msg("notify: could not build eloqua client")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if len(succeeded) > 0 {
			if err := ec.ImportExecutionStatus(ctx, instanceID, executionID, true, succeeded); err != nil {
				s.log.Error().Err(err).Str("execution_id", executionID).Msg("notify: could not report completed contacts")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}
		if len(errored) > 0 {
			if err := ec.ImportExecutionStatus(ctx, instanceID, executionID, false, errored); err != nil {
				s.log.Error().Err(err).Str("execution_id", executionID).Msg("notify: could not report errored contacts")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		s.log.Info().Str("execution_id", executionID).Int("succeeded", len(succeeded)).Int("errored", len(errored)).
			Msg("notification processed")
		w.WriteHeader(http.StatusNoContent)
	}
}

// registerParticipants upserts each contact into the Qondor project and
// splits the batch into succeeded and errored contact ids. A missing
// project id fails the whole batch; one contact's failure never stops the
// rest.
func (s *Server) registerParticipants(ctx context.Context, projectID string, items []map[string]string) (succeeded, errored []string) {
	ids := func(items []map[string]string) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item["id"])
		}
		return out
	}

	if projectID == "" {
		s.log.Error().Msg("notify: instance has no project configured")
		return nil, ids(items)
	}
	if err := s.qondor.EnsureCompanyField(ctx, projectID); err != nil {
		s.log.Error().Err(err).Str("project", projectID).Msg("notify: could not ensure company field")
		return nil, ids(items)
	}
	existing, err := s.qondor.Participants(ctx, projectID)
	if err != nil {
		s.log.Error().Err(err).Str("project", projectID).Msg("notify: could not list participants")
		return nil, ids(items)
	}

	for _, item := range items {
		participant := qondor.Participant{
			FirstName: item["firstName"],
			LastName:  item["lastName"],
			Email:     item["email"],
			Company:   item["company"],
		}
		if err := s.qondor.UpsertParticipant(ctx, projectID, existing, participant); err != nil {
			s.log.Warn().Err(err).Str("email", participant.Email).Msg("notify: participant rejected")
			errored = append(errored, item["id"])
			continue
		}
		succeeded = append(succeeded, item["id"])
	}
	return succeeded, errored
}
