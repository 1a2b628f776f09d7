package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/context"
	"gorm.io/gorm"

	"github.com/robinmail/dnsguard/config"
)

const dependencyTimeout = 5 * time.Second

// HealthCheck provides a simple liveness endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports reachability of the process dependencies. Each dependency
// gets its own timeout; a slow database never blocks the MTA probe.
func Status(db *gorm.DB, mtaConfig *config.MtaConfig) gin.HandlerFunc {
	httpClient := &http.Client{Timeout: dependencyTimeout}

	return func(c *gin.Context) {
		dependencies := gin.H{
			"database": checkDatabase(c.Request.Context(), db),
		}
		if mtaConfig != nil && mtaConfig.Url != "" {
			dependencies["mta"] = checkMta(c.Request.Context(), httpClient, mtaConfig.Url)
		}

		status := http.StatusOK
		overall := "UP"
		for _, state := range dependencies {
			if state != "UP" {
				status = http.StatusServiceUnavailable
				overall = "DOWN"
			}
		}
		c.JSON(status, gin.H{"status": overall, "dependencies": dependencies})
	}
}

func checkDatabase(ctx context.Context, db *gorm.DB) string {
	ctx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	sqlDB, err := db.DB()
	if err != nil {
		return "DOWN"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "DOWN"
	}
	return "UP"
}

func checkMta(ctx context.Context, httpClient *http.Client, baseURL string) string {
	ctx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return "DOWN"
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "DOWN"
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "DOWN"
	}
	return "UP"
}
