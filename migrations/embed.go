// README: SQL schema files embedded into the binary and applied by infra.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
