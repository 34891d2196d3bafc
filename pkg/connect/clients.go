package connect

// Client describes one of the named API clients the backend recognizes. Each
// carries its own OAuth client id, scope, and the token-type marker the API
// expects in the `tokentype` header when its access token is presented.
type Client struct {
	Name         string
	ID           string
	Scope        string
	ResponseType string
	TokenType    string
}

// SignsIn reports whether the client obtains tokens through the interactive
// authorization-code flow. Clients that do not (the VW Group API client) derive
// their tokens from another client's id token.
func (c Client) SignsIn() bool {
	return c.ID != ""
}

// The registered API clients. ClientVWG has no sign-in identity of its own: its
// tokens come from the id-token grant using ClientConnect's id token.
var (
	ClientConnect = Client{
		Name:         "connect",
		ID:           "7f045eee-7003-4379-9968-9355ed2adb06@apps_vw-dilab_com",
		Scope:        "openid mbb profile cars address email birthdate badge phone driversLicense dealers profession vin",
		ResponseType: "code id_token",
		TokenType:    "IDK_CONNECT",
	}
	ClientSkoda = Client{
		Name:         "skoda",
		ID:           "f9a2359a-b776-46d9-bd0c-db1904343117@apps_vw-dilab_com",
		Scope:        "openid mbb profile",
		ResponseType: "code id_token",
		TokenType:    "IDK_TECHNICAL",
	}
	ClientSmartLink = Client{
		Name:         "smartlink",
		ID:           "72f9d29d-aa2b-40c1-bebe-4c7683681d4c@apps_vw-dilab_com",
		Scope:        "openid dealers profile email cars address",
		ResponseType: "code id_token",
		TokenType:    "IDK_SMARTLINK",
	}
	ClientVWG = Client{
		Name:      "vwg",
		TokenType: "MBB",
	}
)

var clients = map[string]Client{
	ClientConnect.Name:   ClientConnect,
	ClientSkoda.Name:     ClientSkoda,
	ClientSmartLink.Name: ClientSmartLink,
	ClientVWG.Name:       ClientVWG,
}

// ClientNamed looks up a registered client by name.
func ClientNamed(name string) (Client, bool) {
	c, ok := clients[name]
	return c, ok
}
