package dto

type CreateSessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateSessionResponse only keeps the token; the platform sends more.
type CreateSessionResponse struct {
	Token string `json:"token"`
}

// RealtimeAuth is sent with the socket CONNECT packet.
type RealtimeAuth struct {
	Token string `json:"token"`
}
