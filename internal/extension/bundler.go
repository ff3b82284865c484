package extension

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"
)

// sharedDeps maps shared runtime import specifiers to the base name of their
// published host asset chunk.
var sharedDeps = map[string]string{
	"@lattice/extensions-sdk": "extensions-sdk",
	"vue":                     "vue",
}

// Bundler compiles the browser half of loaded extensions: one minified ESM
// source string per browser-facing type, held in memory only.
type Bundler struct {
	assetsPath string
	publicURL  string
	log        *zap.Logger
}

// NewBundler creates a bundler resolving shared dependency chunks under
// assetsPath and rewriting them to URLs below publicURL.
func NewBundler(assetsPath, publicURL string, log *zap.Logger) *Bundler {
	return &Bundler{
		assetsPath: assetsPath,
		publicURL:  strings.TrimRight(publicURL, "/"),
		log:        log,
	}
}

// Bundle compiles every browser-facing type independently. A failing type is
// logged and left absent from the result; other types still build.
func (b *Bundler) Bundle(descriptors []Descriptor) map[Type]string {
	chunks := b.chunkURLs()

	out := make(map[Type]string)
	for _, t := range AppTypes() {
		source, err := b.bundleType(t, descriptors, chunks)
		if err != nil {
			b.log.Warn("app bundle failed", zap.String("type", string(t)), zap.Error(err))
			continue
		}
		out[t] = source
	}
	return out
}

// bundleType synthesizes a virtual entry module importing every loaded
// extension of type t and compiles it with shared dependencies externalized.
func (b *Bundler) bundleType(t Type, descriptors []Descriptor, chunks map[string]string) (string, error) {
	var imports, exports []string
	for i, desc := range descriptors {
		if desc.Type != t || desc.Entrypoint.App == "" {
			continue
		}
		name := fmt.Sprintf("e%d", i)
		imports = append(imports, fmt.Sprintf("import %s from %q;", name, desc.Entrypoint.App))
		exports = append(exports, name)
	}
	entry := strings.Join(imports, "\n") +
		fmt.Sprintf("\nexport default [%s];\n", strings.Join(exports, ", "))

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   entry,
			Sourcefile: string(t) + "-entry.js",
			ResolveDir: b.assetsPath,
			Loader:     api.LoaderJS,
		},
		Bundle:            true,
		Write:             false,
		Format:            api.FormatESModule,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Plugins:           []api.Plugin{b.externalizePlugin(chunks)},
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return "", fmt.Errorf("bundle %s: %s", t, result.Errors[0].Text)
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundle %s: no output produced", t)
	}
	return string(result.OutputFiles[0].Contents), nil
}

// externalizePlugin rewrites shared dependency imports to published chunk
// URLs. A dependency without a published chunk stays external under its
// original specifier; the client surfaces the resolution failure.
func (b *Bundler) externalizePlugin(chunks map[string]string) api.Plugin {
	specifiers := make([]string, 0, len(sharedDeps))
	for dep := range sharedDeps {
		specifiers = append(specifiers, regexp.QuoteMeta(dep))
	}
	filter := "^(" + strings.Join(specifiers, "|") + ")$"

	return api.Plugin{
		Name: "lattice-shared-deps",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: filter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if url, ok := chunks[args.Path]; ok {
						return api.OnResolveResult{Path: url, External: true}, nil
					}
					b.log.Warn("shared dependency chunk not published",
						zap.String("dependency", args.Path))
					return api.OnResolveResult{External: true}, nil
				})
		},
	}
}

// chunkURLs locates the published asset chunk of each shared dependency by
// its content-hash-suffixed filename.
func (b *Bundler) chunkURLs() map[string]string {
	entries, err := os.ReadDir(b.assetsPath)
	if err != nil {
		b.log.Warn("asset directory unreadable", zap.String("path", b.assetsPath), zap.Error(err))
		return nil
	}

	urls := make(map[string]string)
	for dep, base := range sharedDeps {
		pattern := regexp.MustCompile("^" + regexp.QuoteMeta(base) + `-[0-9a-f]{8}\.js$`)
		for _, entry := range entries {
			if pattern.MatchString(entry.Name()) {
				urls[dep] = b.publicURL + "/assets/" + entry.Name()
				break
			}
		}
	}
	return urls
}
