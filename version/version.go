// Package version holds build identification, set through ldflags.
package version

//nolint:gochecknoglobals // set at link time
var (
	name    = "tropism"
	version = "dev"
	commit  = "unknown"
)

func Name() string {
	return name
}

func Version() string {
	return version
}

func Commit() string {
	return commit
}
