package dto

type JobStatusResponse struct {
	JobID                string            `json:"job_id"`
	RequestID            string            `json:"request_id"`
	Status               string            `json:"status"`
	PercentComplete      int               `json:"percent_complete"`
	CurrentStep          string            `json:"current_step,omitempty"`
	ProvisionedResources map[string]string `json:"provisioned_resources,omitempty"`
	ErrorMessage         string            `json:"error_message,omitempty"`
}
