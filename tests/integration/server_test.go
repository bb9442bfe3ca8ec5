package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/admin"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/apikeys"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/auth"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/elements"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/groups"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/importexport"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/networks"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// setupFullServer creates a Gin engine with all routes registered
// This mirrors the setup in cmd/gridreg-server/main.go
func setupFullServer(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "gridreg",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(db)

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(db)
		apiKeysHandler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		// Network-scoped routes (protected - accepts JWT or API key)
		networksGroup := api.Group("/networks")
		networksGroup.Use(combinedAuth)

		networksHandler := networks.NewHandler(db)
		networksHandler.RegisterRoutes(networksGroup)

		elementsHandler := elements.NewHandler(db)
		elementsHandler.RegisterRoutes(networksGroup)

		groupsHandler := groups.NewHandler(db)
		groupsHandler.RegisterRoutes(networksGroup)
		groupsHandler.RegisterMemberRoutes(networksGroup)

		importExportHandler := importexport.NewHandler(db)
		importExportHandler.RegisterRoutes(networksGroup)

		// Admin routes (JWT only, admin role required)
		adminHandler := admin.NewHandler(db)
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(), auth.RequireAdmin())
		adminHandler.RegisterRoutes(adminGroup)
	}

	return r
}

func request(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func registerUser(t *testing.T, r *gin.Engine, email string) string {
	resp := request(r, "POST", "/api/auth/register", "", map[string]any{
		"email":    email,
		"password": "password123",
		"name":     "Test User",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Register failed: %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	json.Unmarshal(resp.Body.Bytes(), &out)
	return out.Token
}

func TestHealthEndpoints(t *testing.T) {
	db := setupTestDB(t)
	r := setupFullServer(db)

	resp := request(r, "GET", "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}

	resp = request(r, "GET", "/api/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
}

// TestGroupLifecycle walks the whole surface the way a simulation driver
// would: build a network, populate element tables, group elements, operate
// on the group, and export it.
func TestGroupLifecycle(t *testing.T) {
	db := setupTestDB(t)
	r := setupFullServer(db)
	token := registerUser(t, r, "driver@example.com")

	// Create a network
	resp := request(r, "POST", "/api/networks", token, map[string]any{
		"name": "Test Grid",
		"slug": "test-grid",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Create network failed: %d: %s", resp.Code, resp.Body.String())
	}

	// Declare element tables and insert rows
	for _, table := range []map[string]any{
		{"element_type": "bus", "columns": []string{"name", "in_service"}, "result_fields": []string{"vm_pu"}},
		{"element_type": "load", "columns": []string{"name", "p_mw", "in_service"}, "result_fields": []string{"p_mw"}},
	} {
		resp = request(r, "POST", "/api/networks/1/tables", token, table)
		if resp.Code != http.StatusCreated {
			t.Fatalf("Create table failed: %d: %s", resp.Code, resp.Body.String())
		}
	}
	for i := 0; i < 4; i++ {
		resp = request(r, "POST", "/api/networks/1/tables/load/rows", token, map[string]any{
			"eid":   i,
			"attrs": map[string]any{"name": fmt.Sprintf("Load %d", i), "in_service": true},
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("Insert row failed: %d: %s", resp.Code, resp.Body.String())
		}
	}

	// Create a group over the loads
	resp = request(r, "POST", "/api/networks/1/groups", token, map[string]any{
		"name": "Feeder A",
		"entries": []map[string]any{
			{"element_type": "load", "members": []int{0, 2, 3}},
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Create group failed: %d: %s", resp.Code, resp.Body.String())
	}

	// Resolve preserves member order
	resp = request(r, "GET", "/api/networks/1/groups/0/types/load/resolve", token, nil)
	var resolved struct {
		EIDs []int64 `json:"eids"`
	}
	json.Unmarshal(resp.Body.Bytes(), &resolved)
	if len(resolved.EIDs) != 3 || resolved.EIDs[0] != 0 || resolved.EIDs[1] != 2 {
		t.Errorf("Expected eids [0 2 3], got %v", resolved.EIDs)
	}

	// Write results, then sum them through the group
	for _, eid := range []int64{0, 2, 3} {
		p := 1.5
		resp = request(r, "PUT", fmt.Sprintf("/api/networks/1/tables/load/rows/%d/results", eid), token, map[string]any{
			"values": map[string]*float64{"p_mw": &p},
		})
		if resp.Code != http.StatusOK {
			t.Fatalf("Set results failed: %d: %s", resp.Code, resp.Body.String())
		}
	}
	resp = request(r, "GET", "/api/networks/1/groups/0/power", token, nil)
	var power struct {
		Sum float64 `json:"sum"`
	}
	json.Unmarshal(resp.Body.Bytes(), &power)
	if power.Sum != 4.5 {
		t.Errorf("Expected power sum 4.5, got %f", power.Sum)
	}

	// Take the group out of service; results become undefined
	flag := false
	resp = request(r, "POST", "/api/networks/1/groups/0/in-service", token, map[string]any{
		"in_service": &flag,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Set in-service failed: %d: %s", resp.Code, resp.Body.String())
	}
	resp = request(r, "GET", "/api/networks/1/groups/0/power", token, nil)
	var afterOutage struct {
		Sum         float64          `json:"sum"`
		Diagnostics []map[string]any `json:"diagnostics"`
	}
	json.Unmarshal(resp.Body.Bytes(), &afterOutage)
	if afterOutage.Sum != 0 {
		t.Errorf("Expected zero sum after outage, got %f", afterOutage.Sum)
	}
	if len(afterOutage.Diagnostics) != 3 {
		t.Errorf("Expected 3 missing-result diagnostics, got %d", len(afterOutage.Diagnostics))
	}

	// Export the group table
	resp = request(r, "GET", "/api/networks/1/groups-export", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Export failed: %d: %s", resp.Code, resp.Body.String())
	}
	var snapshot struct {
		Groups []map[string]any `json:"groups"`
	}
	json.Unmarshal(resp.Body.Bytes(), &snapshot)
	if len(snapshot.Groups) != 1 {
		t.Errorf("Expected 1 exported group, got %d", len(snapshot.Groups))
	}
}

// TestDanglingRepairThroughAdmin deletes an element out from under a group
// and verifies the admin audit endpoint repairs the group table.
func TestDanglingRepairThroughAdmin(t *testing.T) {
	db := setupTestDB(t)
	r := setupFullServer(db)
	token := registerUser(t, r, "admin@example.com")

	// Promote to admin directly; registration always creates plain users
	db.Model(&models.User{}).Where("email = ?", "admin@example.com").
		Update("system_role", models.SystemRoleAdmin)
	token = loginUser(t, r, "admin@example.com")

	request(r, "POST", "/api/networks", token, map[string]any{"name": "Grid", "slug": "grid"})
	request(r, "POST", "/api/networks/1/tables", token, map[string]any{
		"element_type": "load", "columns": []string{"name"},
	})
	for i := 5; i <= 6; i++ {
		request(r, "POST", "/api/networks/1/tables/load/rows", token, map[string]any{
			"eid": i, "attrs": map[string]any{"name": fmt.Sprintf("Load %d", i)},
		})
	}
	request(r, "POST", "/api/networks/1/groups", token, map[string]any{
		"name":    "feeder",
		"entries": []map[string]any{{"element_type": "load", "members": []int{5, 6}}},
	})

	// Delete load 6 out from under the group
	resp := request(r, "DELETE", "/api/networks/1/tables/load/rows/6", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Delete row failed: %d: %s", resp.Code, resp.Body.String())
	}

	// The group still resolves, just without the dangling member
	resp = request(r, "GET", "/api/networks/1/groups/0/types/load/resolve", token, nil)
	var resolved struct {
		EIDs []int64 `json:"eids"`
	}
	json.Unmarshal(resp.Body.Bytes(), &resolved)
	if len(resolved.EIDs) != 1 || resolved.EIDs[0] != 5 {
		t.Errorf("Expected eids [5], got %v", resolved.EIDs)
	}

	// The audit pass rewrites the stored entry to the survivors
	resp = request(r, "POST", "/api/admin/networks/1/audit", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Audit failed: %d: %s", resp.Code, resp.Body.String())
	}
	var report struct {
		Notices []map[string]any `json:"notices"`
	}
	json.Unmarshal(resp.Body.Bytes(), &report)
	if len(report.Notices) != 1 {
		t.Errorf("Expected 1 audit notice, got %d", len(report.Notices))
	}

	var entry models.GroupEntry
	db.Where("network_id = ? AND group_id = ?", 1, 0).First(&entry)
	if len(entry.Members) != 1 {
		t.Errorf("Expected stored members [5], got %v", entry.Members)
	}
}

// loginUser logs an existing user in and returns a fresh token
// carrying their current role.
func loginUser(t *testing.T, r *gin.Engine, email string) string {
	resp := request(r, "POST", "/api/auth/login", "", map[string]any{
		"email":    email,
		"password": "password123",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Login failed: %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	json.Unmarshal(resp.Body.Bytes(), &out)
	return out.Token
}

// TestAPIKeyAccess drives the network surface with an API key instead of a
// login session, the way a batch solver would.
func TestAPIKeyAccess(t *testing.T) {
	db := setupTestDB(t)
	r := setupFullServer(db)
	token := registerUser(t, r, "driver@example.com")

	resp := request(r, "POST", "/api/api-keys", token, map[string]any{
		"description": "batch solver",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Create API key failed: %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Key string `json:"key"`
	}
	json.Unmarshal(resp.Body.Bytes(), &created)

	// The key works on network routes
	resp = request(r, "POST", "/api/networks", created.Key, map[string]any{
		"name": "Grid", "slug": "grid",
	})
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201 with API key, got %d: %s", resp.Code, resp.Body.String())
	}

	// But not on key management, which wants a login session
	resp = request(r, "GET", "/api/api-keys", created.Key, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for API key on key management, got %d", resp.Code)
	}
}
