package main

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jp1648/portfolio/internal/visits"
)

const adminCookie = "admin_token"

func newAdminToken() (string, error) {
	token, err := visits.RandomToken()
	if err != nil {
		return "", err
	}
	log.Printf("Admin access available at: /admin/login")
	if gin.Mode() == gin.DebugMode {
		log.Printf("Admin token (dev only): %s", token)
	}
	return token, nil
}

// Middleware to check admin authentication
func (s *server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *server) clientHash(c *gin.Context) string {
	if s.tracker == nil {
		return "unknown"
	}
	return s.tracker.HashIP(c.ClientIP())
}

func (s *server) adminStats(c *gin.Context) (gin.H, error) {
	out := gin.H{}
	if s.tracker != nil {
		stats, err := s.tracker.Stats(c.Request.Context(), 50)
		if err != nil {
			return nil, err
		}
		out["visitors"] = stats
	}

	snap, err := s.catalog.Snapshot(c.Request.Context())
	if err != nil {
		return nil, err
	}
	catalogInfo := gin.H{
		"state":    snap.State.String(),
		"projects": snap.Projects,
	}
	if !snap.UpdatedAt.IsZero() {
		catalogInfo["updated_at"] = snap.UpdatedAt
	}
	out["catalog"] = catalogInfo
	return out, nil
}

// Setup all admin routes
func (s *server) setupAdminRoutes(r *gin.Engine) {
	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{
			"title": "Admin Login",
		})
	})

	r.POST("/admin/login", func(c *gin.Context) {
		username := c.PostForm("username")
		password := c.PostForm("password")

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Admin.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Admin.Password)) == 1
		if userOK && passOK {
			// Set secure cookie (24 hours)
			c.SetCookie(adminCookie, s.adminToken, 3600*24, "/admin", "", false, true)
			log.Printf("Admin login successful from %s", s.clientHash(c))
			c.Redirect(http.StatusFound, "/admin/dashboard")
			return
		}

		log.Printf("Failed admin login attempt from %s", s.clientHash(c))
		c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
			"error": "Invalid credentials",
		})
	})

	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", false, true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	adminGroup := r.Group("/admin")
	adminGroup.Use(s.adminAuthMiddleware())

	adminGroup.GET("/dashboard", func(c *gin.Context) {
		stats, err := s.adminStats(c)
		if err != nil {
			log.Printf("Error loading admin stats: %v", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load statistics",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", stats)
	})

	adminGroup.GET("/api/stats", func(c *gin.Context) {
		stats, err := s.adminStats(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	adminGroup.POST("/catalog/refresh", func(c *gin.Context) {
		projects, err := s.catalog.Refresh(c.Request.Context(), "")
		if err != nil {
			log.Printf("Error refreshing catalog: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
	})

	adminGroup.DELETE("/catalog/cache", func(c *gin.Context) {
		if err := s.catalog.Purge(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to purge cache"})
			return
		}
		log.Printf("Project cache purged by admin from %s", s.clientHash(c))
		c.JSON(http.StatusOK, gin.H{"message": "Project cache purged"})
	})

	adminGroup.POST("/privacy/cleanup", func(c *gin.Context) {
		if s.tracker == nil {
			c.JSON(http.StatusOK, gin.H{"deleted": 0})
			return
		}
		deleted, err := s.tracker.Cleanup(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	})
}
