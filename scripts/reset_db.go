package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"fleet-backend/internal/config"
	"fleet-backend/internal/db"
	"fleet-backend/internal/models"
	"fleet-backend/internal/reference"
	"fleet-backend/internal/repositories"
	"fleet-backend/internal/services"
	"fleet-backend/internal/timeutil"

	"github.com/shopspring/decimal"
)

func main() {
	seed := flag.Bool("seed", false, "Insert demo rentals after the reset")
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("   Reset Payment Ledger for Testing")
	fmt.Println("========================================")
	fmt.Println()
	fmt.Println("WARNING: This will DELETE ALL PAYMENT DATA!")
	fmt.Println()
	fmt.Println("This will:")
	fmt.Println("  - Delete all rental payments")
	fmt.Println("  - Delete the webhook delivery log")
	fmt.Println()
	fmt.Print("Type 'yes' to confirm: ")

	var confirm string
	fmt.Scanln(&confirm)

	if confirm != "yes" {
		fmt.Println("Reset cancelled.")
		return
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	fmt.Println()
	fmt.Println("Resetting database...")

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v\n", err)
	}
	defer tx.Rollback(ctx)

	tables := []string{"webhook_deliveries", "rental_payments"}
	for _, table := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			log.Fatalf("Failed to truncate %s: %v\n", table, err)
		}
		fmt.Printf("  - Truncated %s\n", table)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit transaction: %v\n", err)
	}

	if *seed {
		seedDemoRentals(ctx, services.NewPaymentLedger(repositories.NewRentalPaymentRepository(pool), services.AmountPolicy{}))
	}

	fmt.Println()
	fmt.Println("Database reset complete.")
}

func seedDemoRentals(ctx context.Context, ledger *services.PaymentLedger) {
	today := timeutil.StartOfDay(timeutil.Now())
	demo := []struct {
		rentalID, customer, vehicle, company string
		amount                               int64
		status                               models.PaymentStatus
		dueIn                                int
	}{
		{"r-1001", "Sarah Johnson", "AB12 CDE", "", 240, models.PaymentStatusPending, 7},
		{"r-1002", "Michael Chen", "XY34 FGH", "Chen Logistics", 1150, models.PaymentStatusPending, 14},
		{"r-1003", "Priya Patel", "LM56 NOP", "", 90, models.PaymentStatusOverdue, -3},
	}

	for _, d := range demo {
		p, err := ledger.Register(ctx, &models.RentalPayment{
			RentalID:            d.rentalID,
			CustomerName:        d.customer,
			VehicleRegistration: d.vehicle,
			Company:             d.company,
			AmountDue:           decimal.NewFromInt(d.amount),
			PaymentStatus:       d.status,
			PaymentDueDate:      today.Add(time.Duration(d.dueIn) * 24 * time.Hour),
			PaymentMethod:       "bank_transfer",
		})
		if err != nil {
			log.Fatalf("Failed to seed %s: %v\n", d.rentalID, err)
		}
		fmt.Printf("  - Seeded %s, bank reference %s\n", p.RentalID, reference.Encode(p.RentalID, p.CustomerName))
	}
}
