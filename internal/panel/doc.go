// Package panel serves the LoxHome dashboard frontend.
//
// The frontend build directory (panel.static_dir) is served with SPA
// fallback routing: if a requested file does not exist, index.html is
// served so client-side routing works. Requests for /index.html are served
// in place, since embedded frames load the document by that name. Without
// a build directory, an embedded placeholder page is served.
package panel
