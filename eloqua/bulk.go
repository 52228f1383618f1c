package eloqua

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// syncActionDefinition is the bulk import definition for a setStatus sync
// action: it marks contacts complete or errored against a specific action
// instance execution.
type syncActionDefinition struct {
	Name              string            `json:"name"`
	Fields            map[string]string `json:"fields"`
	IdentifierField   string            `json:"identifierFieldName"`
	SyncActions       []syncAction      `json:"syncActions"`
	IsSyncTriggeredOn bool              `json:"isSyncTriggeredOnImport"`
}

type syncAction struct {
	Action      string `json:"action"`
	Destination string `json:"destination"`
	Status      string `json:"status"`
}

type importResponse struct {
	URI string `json:"uri"`
}

// ImportExecutionStatus reports per-contact status for one execution back
// to Eloqua through the bulk sync-action flow: create the import
// definition, upload the contact ids, and let the upload trigger the
// sync.
func (c *Client) ImportExecutionStatus(ctx context.Context, instanceID, executionID string, complete bool, contactIDs []string) error {
	status := "errored"
	if complete {
		status = "complete"
	}
	def := syncActionDefinition{
		Name:            fmt.Sprintf("Qondor integration #%s for contacts", executionID),
		Fields:          map[string]string{"id": "{{Contact.Id}}"},
		IdentifierField: "id",
		SyncActions: []syncAction{{
			Action:      "setStatus",
			Destination: fmt.Sprintf("{{ActionInstance(%s).Execution[%s]}}", instanceID, executionID),
			Status:      status,
		}},
		IsSyncTriggeredOn: true,
	}

	var created importResponse
	if err := c.do(ctx, "POST", c.baseURL+"/api/bulk/2.0/contacts/imports", def, &created); err != nil {
		return errors.Wrap(err, "[ImportExecutionStatus] create import")
	}
	if created.URI == "" {
		return errors.New("[ImportExecutionStatus] import definition returned no uri")
	}

	items := make([]map[string]string, 0, len(contactIDs))
	for _, id := range contactIDs {
		items = append(items, map[string]string{"id": id})
	}
	if err := c.do(ctx, "POST", c.baseURL+"/api/bulk/2.0"+created.URI+"/data", items, nil); err != nil {
		return errors.Wrap(err, "[ImportExecutionStatus] upload items")
	}

	c.log.Debug().Str("execution_id", executionID).Str("status", status).Int("contacts", len(contactIDs)).
		Msg("imported execution status")
	return nil
}
