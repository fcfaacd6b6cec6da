package apiv1

// Pong is the answer of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}
