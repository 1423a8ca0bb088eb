package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageConfig maps a tree-sitter grammar's node-type vocabulary onto the
// ChunkType taxonomy for one language.
type languageConfig struct {
	name       string
	extensions []string
	tsLang     *sitter.Language
	nodeTypes  map[string]ChunkType
}

// languageRegistry holds every grammar the default chunker recognizes by
// file extension. Unrecognized extensions fall back to line-based chunking
// (spec §1 Non-goals: no promise of deep understanding for every dialect,
// only "a reasonable default" per the Chunker capability boundary).
type languageRegistry struct {
	mu      sync.RWMutex
	byExt   map[string]*languageConfig
	byName  map[string]*languageConfig
}

func newLanguageRegistry() *languageRegistry {
	r := &languageRegistry{
		byExt:  make(map[string]*languageConfig),
		byName: make(map[string]*languageConfig),
	}
	r.register(&languageConfig{
		name:       "go",
		extensions: []string{".go"},
		tsLang:     golang.GetLanguage(),
		nodeTypes: map[string]ChunkType{
			"function_declaration": ChunkTypeFunction,
			"method_declaration":   ChunkTypeMethod,
			"type_declaration":     ChunkTypeTypeAlias,
		},
	})
	ts := &languageConfig{
		name:       "typescript",
		extensions: []string{".ts"},
		tsLang:     typescript.GetLanguage(),
		nodeTypes: map[string]ChunkType{
			"function_declaration":  ChunkTypeFunction,
			"method_definition":     ChunkTypeMethod,
			"class_declaration":     ChunkTypeClass,
			"interface_declaration": ChunkTypeInterface,
			"type_alias_declaration": ChunkTypeTypeAlias,
		},
	}
	r.register(ts)
	r.register(&languageConfig{
		name:       "tsx",
		extensions: []string{".tsx"},
		tsLang:     tsx.GetLanguage(),
		nodeTypes:  ts.nodeTypes,
	})
	js := &languageConfig{
		name:       "javascript",
		extensions: []string{".js", ".mjs", ".jsx"},
		tsLang:     javascript.GetLanguage(),
		nodeTypes: map[string]ChunkType{
			"function_declaration": ChunkTypeFunction,
			"method_definition":    ChunkTypeMethod,
			"class_declaration":    ChunkTypeClass,
		},
	}
	r.register(js)
	r.register(&languageConfig{
		name:       "python",
		extensions: []string{".py"},
		tsLang:     python.GetLanguage(),
		nodeTypes: map[string]ChunkType{
			"function_definition": ChunkTypeFunction,
			"class_definition":    ChunkTypeClass,
		},
	})
	return r
}

func (r *languageRegistry) register(cfg *languageConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[cfg.name] = cfg
	for _, ext := range cfg.extensions {
		r.byExt[ext] = cfg
	}
}

func (r *languageRegistry) forPath(path string) (*languageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext := strings.ToLower(filepath.Ext(path))
	cfg, ok := r.byExt[ext]
	return cfg, ok
}

var defaultLanguageRegistry = newLanguageRegistry()
