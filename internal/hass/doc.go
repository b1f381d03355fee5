// Package hass owns the connection to the Home Assistant backend.
//
// A Manager holds at most one authenticated WebSocket session and is the
// only way the rest of LoxHome talks to the backend:
//
//   - connecting, by cross-frame handshake (ConnectAsPanel), with a known
//     token (ConnectWithCredential), or by interactive OAuth2 login
//     (ConnectInteractive)
//   - service calls (Call, Toggle), which log and absorb failures
//   - registry reads and discovery (FetchAreas, FetchDevices,
//     FetchEntityRegistry, Discover)
//   - per-user frontend storage (GetUserData, SetUserData)
//
// Live entity states arrive through the backend's subscribe_entities
// subscription. Its compressed diffs are folded into a full map that is
// published, whole, on the States store after every push.
//
// Wire protocol:
//
//	<- {"type":"auth_required"}
//	-> {"type":"auth","access_token":"..."}
//	<- {"type":"auth_ok"} | {"type":"auth_invalid","message":"..."}
//	-> {"id":1,"type":"call_service","domain":"light","service":"toggle","target":{"entity_id":"light.a"}}
//	<- {"id":1,"type":"result","success":true,"result":{...}}
//
// Usage:
//
//	m := hass.NewManager(hass.NewWSDialer())
//	m.SetLogger(logger)
//	if err := m.ConnectWithCredential(ctx, cfg.Backend.URL, cfg.Backend.Token); err != nil {
//	    return err
//	}
//	defer m.Disconnect()
//	m.Toggle(ctx, "light.kitchen")
package hass
