// Package state provides observable value containers.
//
// A Store is the publish/subscribe primitive shared by the connection
// manager (connection flag, entity states, credential) and the dashboard
// config store. Only the owning component writes to a store; every other
// component reads or subscribes.
//
// # Usage
//
//	connected := state.New(false)
//	unsubscribe := connected.Subscribe(func(v bool) {
//	    log.Info("connection changed", "connected", v)
//	})
//	defer unsubscribe()
//
//	connected.Set(true)
package state
