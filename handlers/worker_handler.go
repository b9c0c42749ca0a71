package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/app"
	"github.com/veridoc/veridoc/services/dispatch"
	"github.com/veridoc/veridoc/utils"
)

// ProcessTaskHandler handles POST /worker/process, the endpoint the
// task-dispatch service delivers queued tasks to. A 200 acks the task; any
// other status makes the queue redeliver it.
func ProcessTaskHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var task dispatch.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid task body", nil)
			return
		}
		if task.JobID == "" || task.Tenant == "" {
			_ = utils.WriteBadRequest(w, "Task must carry job_id and tenant_id", nil)
			return
		}

		if err := deps.Analysis.Process(r.Context(), task); err != nil {
			deps.Logger.Error("task processing failed",
				zap.String("job_id", task.JobID),
				zap.Error(err))
			_ = utils.WriteInternalServerError(w, "")
			return
		}

		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "processed"})
	}
}
