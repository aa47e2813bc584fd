package buildhandler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
)

// Resolver turns archived repository snapshots into build handlers. In
// mock mode every archive resolves to a stub handler that sleeps through
// its steps, so the evaluation pipeline can run without Docker or
// repository archives.
type Resolver struct {
	logger *common.Logger
	mock   bool
}

var _ interfaces.BuildResolver = (*Resolver)(nil)

func NewResolver(logger *common.Logger, mock bool) *Resolver {
	if mock {
		logger.Warn().Msg("Mock build handler enabled, submissions will not be built")
	}
	return &Resolver{logger: logger, mock: mock}
}

// Resolve extracts root/archiveName and picks the handler matching the
// build file found at the snapshot's top level. Snapshots with no build
// file, or with both a pom.xml and a build.gradle, are rejected.
func (r *Resolver) Resolve(root, archiveName string) (interfaces.BuildHandler, error) {
	if r.mock {
		return newMockHandler(), nil
	}

	archivePath := filepath.Join(root, archiveName)
	dir, err := extractArchive(archivePath)
	if err != nil {
		return nil, err
	}

	sys, err := detectBuildSystem(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	r.logger.Debug().
		Str("archive", archiveName).
		Str("build_system", sys.Name()).
		Str("dir", dir).
		Msg("Resolved build handler")
	return newHandler(r.logger, sys, dir)
}

func detectBuildSystem(dir string) (buildSystem, error) {
	systems := []buildSystem{mavenSystem{}, gradleSystem{}}

	var found []buildSystem
	for _, sys := range systems {
		if info, err := os.Stat(filepath.Join(dir, sys.BuildFile())); err == nil && info.Mode().IsRegular() {
			found = append(found, sys)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, errCantFindBuildFile(fmt.Sprintf(`Could not find any of ["build.gradle", "pom.xml"] in %q`, dir))
	default:
		return nil, errCantFindBuildFile(fmt.Sprintf("Found both pom.xml and build.gradle in %q", dir))
	}
}
