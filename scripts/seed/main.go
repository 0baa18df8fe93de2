package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rentora/rentora/internal/app"
	"github.com/rentora/rentora/internal/assets"
	"github.com/rentora/rentora/internal/platform/cache"
	"github.com/rentora/rentora/internal/platform/db"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/tenancy"
	"github.com/rentora/rentora/jobs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer jobClient.Close()

	c, err := app.NewContainer(app.Deps{
		Config:   cfg,
		Logger:   app.NewLogger(cfg),
		Pool:     pool,
		Redis:    redisClient,
		Enqueuer: jobClient,
	})
	if err != nil {
		log.Fatalf("init container: %v", err)
	}

	fmt.Println("→ Provisioning system roles...")
	if err := c.Roles.ProvisionSystemRoles(ctx); err != nil {
		log.Fatalf("provision roles: %v", err)
	}

	fmt.Println("→ Seeding demo tenant...")
	res, err := seedTenant(ctx, c)
	if err != nil {
		log.Fatalf("seed tenant: %v", err)
	}

	fmt.Println("→ Seeding demo assets...")
	if err := seedAssets(ctx, c, res); err != nil {
		log.Fatalf("seed assets: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedTenant(ctx context.Context, c *app.Container) (tenancy.CreateTenantResult, error) {
	platform := reqctx.With(ctx, reqctx.Principal{
		UserID:     reqctx.SystemUserID,
		GlobalRole: reqctx.GlobalRoleSuperAdmin,
	})
	return c.Tenants.CreateTenant(platform, tenancy.CreateTenantInput{
		Name:          "Demo Rentals",
		Slug:          "demo-rentals",
		Plan:          "professional",
		OwnerEmail:    getenv("SEED_OWNER_EMAIL", "owner@demo-rentals.test"),
		OwnerName:     "Demo Owner",
		OwnerPassword: getenv("SEED_OWNER_PASSWORD", "changeme123"),
	})
}

func seedAssets(ctx context.Context, c *app.Container, res tenancy.CreateTenantResult) error {
	owner := reqctx.With(ctx, reqctx.Principal{
		UserID:         res.OwnerID,
		TenantID:       res.Tenant.ID,
		BusinessUnitID: res.BusinessUnit.ID,
		Roles:          []string{rbac.RoleOwner},
	})
	fleet := []assets.Input{
		{Name: "Excavator 3t", SerialNumber: "EX-3001", DailyRateCents: 25000},
		{Name: "Scissor Lift 8m", SerialNumber: "SL-0808", DailyRateCents: 12000},
		{Name: "Concrete Mixer", SerialNumber: "CM-0150", DailyRateCents: 4500},
	}
	for _, in := range fleet {
		if _, err := c.Assets.Create(owner, in); err != nil {
			return err
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
