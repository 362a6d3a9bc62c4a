// Package builtin provides the capabilities relay ships with: file tools
// confined to a root directory (read_file, list_dir, write_file), an
// allow-listed external command runner (run_command) and web search
// through a SearXNG instance (web_search).
//
// All of them are exposed through a single capability.Source.
package builtin
