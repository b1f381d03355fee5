// Package localstore is the local persistence tier of the dashboard config.
//
// A Storage holds one string per key and only ever reads or writes a whole
// value, the way a browser's localStorage does. The dashboard store writes
// the serialised config under dashboard.LocalKey after every save and reads
// it back when the backend has no config or cannot be reached.
//
// Two implementations exist:
//
//   - SQLiteStorage keeps values in the local_storage table created by the
//     embedded migrations. loxhome uses it; loxctl db clear-cache calls
//     RemoveItem on it.
//   - MemoryStorage keeps values in a map. Tests use it in place of SQLite.
//
// GetItem reports a missing key as ErrNotFound. Every other error comes
// from the database.
package localstore
