package api

import (
	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/protocol"
)

// FileRequest describes one file of a new upload.
type FileRequest struct {
	Path        string `json:"path" validate:"required"`
	ParamName   string `json:"param_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	RemoteName  string `json:"remote_name,omitempty"`
}

// FormFieldRequest is an extra multipart parameter.
type FormFieldRequest struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// StartUploadRequest is the body of POST /uploads.
type StartUploadRequest struct {
	ID          string             `json:"id,omitempty" validate:"omitempty,max=128"`
	Protocol    string             `json:"protocol,omitempty" validate:"omitempty,oneof=binary multipart copy"`
	Destination string             `json:"destination" validate:"required"`
	Method      string             `json:"method,omitempty" validate:"omitempty,oneof=POST PUT PATCH"`
	Headers     map[string]string  `json:"headers,omitempty"`
	FormFields  []FormFieldRequest `json:"form_fields,omitempty" validate:"dive"`
	Files       []FileRequest      `json:"files" validate:"required,min=1,dive"`
	MaxRetries  *int               `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=100"`
	AutoDelete  bool               `json:"auto_delete,omitempty"`
	Notify      *bool              `json:"notify,omitempty"`
}

// StartUploadResponse is returned when an upload is queued.
type StartUploadResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Defaults fill in what a request leaves out.
type Defaults struct {
	MaxRetries   int
	Notification *engine.NotificationConfig
}

func (req *StartUploadRequest) parameters(def Defaults) (engine.Parameters, error) {
	params := engine.Parameters{
		ID:          req.ID,
		Protocol:    req.Protocol,
		Destination: req.Destination,
		Method:      req.Method,
		Headers:     req.Headers,
		MaxRetries:  def.MaxRetries,
		AutoDelete:  req.AutoDelete,
	}
	if req.MaxRetries != nil {
		params.MaxRetries = *req.MaxRetries
	}
	if req.Notify == nil || *req.Notify {
		params.Notification = def.Notification
	}

	for _, f := range req.FormFields {
		params.FormFields = append(params.FormFields, engine.FormField{Name: f.Name, Value: f.Value})
	}

	for _, f := range req.Files {
		entry, err := engine.NewFileEntry(f.Path)
		if err != nil {
			return engine.Parameters{}, err
		}
		if f.ParamName != "" {
			entry.SetProperty(protocol.PropertyParamName, f.ParamName)
		}
		if f.ContentType != "" {
			entry.SetProperty(protocol.PropertyContentType, f.ContentType)
		}
		if f.RemoteName != "" {
			entry.SetProperty(protocol.PropertyRemoteFileName, f.RemoteName)
		}
		params.Files = append(params.Files, entry)
	}
	return params, nil
}
