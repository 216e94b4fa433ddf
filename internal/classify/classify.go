// Package classify decides which files are worth sending to the paid
// detector.
package classify

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/j-veylop/complyscan/internal/models"
)

// Category is a family of security-relevant code patterns.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryDatabase       Category = "database"
	CategoryRouting        Category = "routing"
	CategorySecrets        Category = "secrets"
	CategoryFileIO         Category = "file_io"
	CategoryNetwork        Category = "network"
)

// SupportedExtensions lists the source file extensions the paid detector
// accepts. Keys are lowercase and include the leading dot.
var SupportedExtensions = map[string]bool{
	".go":    true,
	".py":    true,
	".js":    true,
	".jsx":   true,
	".ts":    true,
	".tsx":   true,
	".java":  true,
	".kt":    true,
	".rb":    true,
	".php":   true,
	".cs":    true,
	".rs":    true,
	".swift": true,
	".scala": true,
	".c":     true,
	".cc":    true,
	".cpp":   true,
	".h":     true,
	".sql":   true,
}

// keywords holds the lowercase substrings that place a file in a category.
var keywords = map[Category][]string{
	CategoryAuthentication: {
		"password", "passwd", "login", "logout", "authenticate", "authorization",
		"jwt", "oauth", "session", "bcrypt", "argon2", "mfa", "totp", "bearer",
	},
	CategoryDatabase: {
		"select ", "insert into", "update ", "delete from", "sql.open", "db.query",
		"db.exec", "execute(", "cursor", "mongodb", "gorm", "sequelize", "prisma",
		"knex", "sqlalchemy",
	},
	CategoryRouting: {
		"http.handlefunc", "router.", "app.get(", "app.post(", "@app.route",
		"@getmapping", "@postmapping", "@requestmapping", "mux.", "express()",
		"gin.default", "echo.new", "fastapi", "endpoint",
	},
	CategorySecrets: {
		"api_key", "apikey", "secret", "private_key", "access_key", "token",
		"credential", "aws_secret", "-----begin",
	},
	CategoryFileIO: {
		"os.open", "os.create", "os.writefile", "ioutil.", "open(", "fs.readfile",
		"fs.writefile", "file.read", "file.write", "fopen", "path.join",
	},
	CategoryNetwork: {
		"http.get", "http.post", "http.client", "fetch(", "axios", "requests.",
		"urllib", "net.dial", "websocket", "socket", "grpc", "tls.config",
		"insecureskipverify",
	},
}

// orderedCategories fixes the order Categories reports matches in.
var orderedCategories = []Category{
	CategoryAuthentication,
	CategoryDatabase,
	CategoryRouting,
	CategorySecrets,
	CategoryFileIO,
	CategoryNetwork,
}

// IsSupported reports whether path has an extension the paid detector accepts.
func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Categories returns every category with at least one keyword present in
// content. Matching is a case-insensitive substring test.
func Categories(content string) []Category {
	lower := strings.ToLower(content)

	var matched []Category
	for _, cat := range orderedCategories {
		if slices.ContainsFunc(keywords[cat], func(k string) bool {
			return strings.Contains(lower, k)
		}) {
			matched = append(matched, cat)
		}
	}
	return matched
}

// IsSecurityRelevant reports whether content matches any category.
func IsSecurityRelevant(content string) bool {
	lower := strings.ToLower(content)
	for _, cat := range orderedCategories {
		for _, k := range keywords[cat] {
			if strings.Contains(lower, k) {
				return true
			}
		}
	}
	return false
}

// ShouldAnalyze decides whether the paid detector runs on a file.
func ShouldAnalyze(mode models.ScanMode, path, content string) bool {
	switch mode {
	case models.ModeAnalyzeAll:
		return IsSupported(path)
	case models.ModeSmart:
		return IsSupported(path) && IsSecurityRelevant(content)
	default:
		return false
	}
}
