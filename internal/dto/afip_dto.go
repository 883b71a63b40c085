package dto

type TokenStatusResponse struct {
	Valid          bool    `json:"valid"`
	ExpirationTime *string `json:"expiration_time,omitempty"`
}

type TokenRenewResponse struct {
	ExpirationTime string `json:"expiration_time"`
}

type ServerStatusResponse struct {
	AppServer  string `json:"app_server"`
	DbServer   string `json:"db_server"`
	AuthServer string `json:"auth_server"`
	OK         bool   `json:"ok"`
}
