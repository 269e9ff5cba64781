// Package plugins holds the installed-plugin store.
//
// Discovery itself lives outside the host; this package consumes plugin
// directories through the manifest subpackage and owns the records from
// install to uninstall. Lifecycle transitions fan out to the sandbox
// manager, the command registry, the theme provider and the panel
// manager so that nothing a plugin registered outlives it.
package plugins
