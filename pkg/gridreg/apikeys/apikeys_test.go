package apikeys

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/auth"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		SystemRole:   models.SystemRoleUser,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	api := r.Group("/api")
	api.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(api)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
}

func TestCreateAPIKey(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")

	body := CreateAPIKeyRequest{
		Description: "Simulation driver",
	}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("POST", "/api/api-keys", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response CreateAPIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.Key == "" {
		t.Error("Expected API key to be returned")
	}

	if len(response.Key) != KeyLength*2 { // hex encoding doubles the length
		t.Errorf("Expected key length %d, got %d", KeyLength*2, len(response.Key))
	}

	if response.KeyPrefix != response.Key[:KeyPrefixLength] {
		t.Error("Key prefix should match the start of the key")
	}

	if response.Description != "Simulation driver" {
		t.Errorf("Expected description 'Simulation driver', got '%s'", response.Description)
	}
}

func TestListAPIKeysOnlyShowsOwnKeys(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user1 := createTestUser(t, db, "user1@example.com")
	user2 := createTestUser(t, db, "user2@example.com")

	db.Create(&models.APIKey{UserID: user1.ID, KeyHash: "hash1", KeyPrefix: "key1abcd"})
	db.Create(&models.APIKey{UserID: user2.ID, KeyHash: "hash2", KeyPrefix: "key2efgh"})

	req, _ := http.NewRequest("GET", "/api/api-keys", nil)
	req.Header.Set("Authorization", getAuthHeader(user1))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	var response []APIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if len(response) != 1 {
		t.Errorf("Expected 1 API key, got %d", len(response))
	}

	if response[0].KeyPrefix != "key1abcd" {
		t.Error("Should only see own API key")
	}
}

func TestDeleteAPIKeyNotOwned(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user1 := createTestUser(t, db, "user1@example.com")
	user2 := createTestUser(t, db, "user2@example.com")

	apiKey := models.APIKey{UserID: user2.ID, KeyHash: "hash1", KeyPrefix: "key1abcd"}
	db.Create(&apiKey)

	req, _ := http.NewRequest("DELETE", "/api/api-keys/1", nil)
	req.Header.Set("Authorization", getAuthHeader(user1))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestValidateAPIKey(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")

	key := "abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
	apiKey := models.APIKey{
		UserID:    user.ID,
		KeyHash:   hashAPIKey(key),
		KeyPrefix: key[:KeyPrefixLength],
	}
	db.Create(&apiKey)

	result, err := ValidateAPIKey(db, key)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if result.ID != apiKey.ID {
		t.Error("Expected to find the API key")
	}

	_, err = ValidateAPIKey(db, "wrongkey")
	if err == nil {
		t.Error("Expected error for invalid key")
	}
}

func TestCombinedAuthMiddleware(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")

	key := "abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
	db.Create(&models.APIKey{
		UserID:    user.ID,
		KeyHash:   hashAPIKey(key),
		KeyPrefix: key[:KeyPrefixLength],
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	protected := r.Group("/protected")
	protected.Use(CombinedAuthMiddleware(db))
	protected.GET("", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	// API key auth
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 with API key, got %d: %s", resp.Code, resp.Body.String())
	}

	// JWT auth through the same middleware
	req, _ = http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 with JWT, got %d: %s", resp.Code, resp.Body.String())
	}

	// Garbage is rejected
	req, _ = http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer deadbeef")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}
