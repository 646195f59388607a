package models

// Connection management
type ConnectRequest struct {
	BrokerURL string `json:"brokerUrl"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Messaging
type SendRequest struct {
	QueueName string `json:"queueName"`
	Message   string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// Public configuration
type PublicConfigResponse struct {
	SupportedSchemes []string `json:"supportedSchemes"`
	DefaultQueue     string   `json:"defaultQueue"`
	ReceiveTimeoutMs int64    `json:"receiveTimeoutMs"`
}

// Errors
type ErrorResponse struct {
	Error string `json:"error"`
}
