package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jp1648/portfolio/internal/catalog"
	"github.com/jp1648/portfolio/internal/contact"
)

type server struct {
	*app
	adminToken string
}

func newServer(a *app) (*server, error) {
	token, err := newAdminToken()
	if err != nil {
		return nil, err
	}
	if a.cfg.Admin.Password == "admin123" && gin.Mode() == gin.DebugMode {
		log.Println("WARNING: Using default admin password. Set ADMIN_PASSWORD environment variable.")
	}
	return &server{app: a, adminToken: token}, nil
}

// projectCard is what the gallery renders for one catalog record.
type projectCard struct {
	Title   string
	Body    string
	LinkURL string
	IsRight bool
}

func projectCards(projects []catalog.ProjectRecord) []projectCard {
	cards := make([]projectCard, 0, len(projects))
	for i, p := range projects {
		card := projectCard{Title: p.Name, LinkURL: p.URL, IsRight: i%2 == 1}
		if p.Description != nil {
			card.Body = *p.Description
		}
		cards = append(cards, card)
	}
	return cards
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware())
	if s.tracker != nil {
		r.Use(s.tracker.Middleware())
	}
	r.LoadHTMLGlob("templates/*")

	r.Static("/static", "./static")

	r.GET("/health", s.health)

	// Home page route
	r.GET("/", func(c *gin.Context) {
		projects := s.catalog.GetCatalog(c.Request.Context(), "")
		c.HTML(http.StatusOK, "index.html", gin.H{
			"site":     s.site,
			"projects": projectCards(projects),
		})
	})

	api := r.Group("/api")
	api.Use(cors.New(corsConfig(s.cfg.Server.CORSOrigins)))
	api.GET("/projects", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"projects": s.catalog.GetCatalog(c.Request.Context(), ""),
		})
	})

	// HTMX contact form endpoint - returns just the form HTML
	r.GET("/contact-form", func(c *gin.Context) {
		c.HTML(http.StatusOK, "contact.html", gin.H{
			"title": "Contact Me",
		})
	})

	// Experience / education toggle panels
	r.GET("/work-content", func(c *gin.Context) {
		c.HTML(http.StatusOK, "timeline.html", gin.H{
			"heading": "Experience",
			"entries": s.site.Experience,
		})
	})
	r.GET("/education-content", func(c *gin.Context) {
		c.HTML(http.StatusOK, "timeline.html", gin.H{
			"heading": "Education History",
			"entries": s.site.Education,
		})
	})

	r.POST("/contact", s.submitContact)

	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title": "Privacy Policy",
		})
	})

	s.setupAdminRoutes(r)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "portfolio",
		"version":   s.cfg.App.Version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *server) submitContact(c *gin.Context) {
	msg := contact.Message{
		Name:  c.PostForm("fullName"),
		Email: c.PostForm("email"),
		Body:  c.PostForm("message"),
	}

	if err := msg.Validate(); err != nil {
		c.HTML(http.StatusOK, "contact-error.html", gin.H{
			"error": "Please fill in your name, a valid email and a message.",
		})
		return
	}

	if err := s.mailer.Send(msg); err != nil {
		if errors.Is(err, contact.ErrNotConfigured) {
			log.Printf("[warn] operation=contact.send %v", err)
		}
		c.HTML(http.StatusOK, "contact-error.html", gin.H{
			"error": "Sorry, there was an error sending your message. Please try again later.",
		})
		return
	}

	c.HTML(http.StatusOK, "contact-success.html", gin.H{
		"success": "Thank you for your message! I'll get back to you soon.",
	})
}

// requestIDMiddleware reads or assigns X-Request-Id and logs one line per request.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Writer.Header().Set("X-Request-Id", rid)

		start := time.Now()
		c.Next()

		log.Printf(
			"[req] id=%s method=%s path=%s status=%d latency=%s",
			rid,
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
