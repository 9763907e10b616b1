package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func countPurchases(t *testing.T, sweetID uuid.UUID) int {
	t.Helper()

	var count int
	if err := testDB.QueryRow(`SELECT COUNT(*) FROM purchases WHERE sweet_id = $1`, sweetID).Scan(&count); err != nil {
		t.Fatalf("Failed to count purchases: %v", err)
	}
	return count
}

func TestExecutePurchase_Success(t *testing.T) {
	ensureShopTables(t)
	sweetRepo := NewSweetRepository(testDB)
	purchaseRepo := NewPurchaseRepository(testDB)
	userID := createTestUser(t)
	ctx := context.Background()

	sweet := createTestSweet(t, sweetRepo, userID, "Candy Cane", "canes", 2.00, 5)

	purchase, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 3)
	if err != nil {
		t.Fatalf("Failed to execute purchase: %v", err)
	}

	if purchase.Quantity != 3 {
		t.Errorf("Expected quantity 3, got %d", purchase.Quantity)
	}
	if purchase.TotalPrice != 6.00 {
		t.Errorf("Expected total price 6.00, got %f", purchase.TotalPrice)
	}

	retrieved, err := sweetRepo.FindByID(ctx, sweet.ID)
	if err != nil {
		t.Fatalf("Failed to find sweet: %v", err)
	}
	if retrieved.Quantity != 2 {
		t.Errorf("Expected remaining quantity 2, got %d", retrieved.Quantity)
	}

	// A second purchase of 3 against the remaining 2 must fail without
	// touching either table
	_, err = purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 3)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatal("Expected an InsufficientStockError with detail")
	}
	if stockErr.Requested != 3 || stockErr.Available != 2 {
		t.Errorf("Expected requested=3 available=2, got requested=%d available=%d", stockErr.Requested, stockErr.Available)
	}

	retrieved, err = sweetRepo.FindByID(ctx, sweet.ID)
	if err != nil {
		t.Fatalf("Failed to find sweet: %v", err)
	}
	if retrieved.Quantity != 2 {
		t.Errorf("Expected quantity 2 after failed purchase, got %d", retrieved.Quantity)
	}
	if countPurchases(t, sweet.ID) != 1 {
		t.Errorf("Expected exactly 1 purchase record, got %d", countPurchases(t, sweet.ID))
	}
}

func TestExecutePurchase_SweetNotFound(t *testing.T) {
	ensureShopTables(t)
	purchaseRepo := NewPurchaseRepository(testDB)
	userID := createTestUser(t)

	_, err := purchaseRepo.ExecutePurchase(context.Background(), uuid.New(), userID, 1)
	if !errors.Is(err, ErrSweetNotFound) {
		t.Errorf("Expected ErrSweetNotFound, got %v", err)
	}
}

// Firing more concurrent requests than there is stock must never oversell:
// the successful quantities sum to at most the starting stock and the final
// quantity accounts for every success.
func TestExecutePurchase_ConcurrentNoOversell(t *testing.T) {
	ensureShopTables(t)
	sweetRepo := NewSweetRepository(testDB)
	purchaseRepo := NewPurchaseRepository(testDB)
	userID := createTestUser(t)
	ctx := context.Background()

	const initialStock = 5
	const buyers = 12

	sweet := createTestSweet(t, sweetRepo, userID, "Limited Praline", "pralines", 1.50, initialStock)

	var wg sync.WaitGroup
	results := make(chan error, buyers)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 1)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, ErrInsufficientStock) && !errors.Is(err, ErrTxConflict) {
			t.Errorf("Unexpected purchase error: %v", err)
		}
	}

	if successes > initialStock {
		t.Fatalf("Oversold: %d successes for %d units of stock", successes, initialStock)
	}

	retrieved, err := sweetRepo.FindByID(ctx, sweet.ID)
	if err != nil {
		t.Fatalf("Failed to find sweet: %v", err)
	}
	if retrieved.Quantity != initialStock-successes {
		t.Errorf("Expected final quantity %d, got %d", initialStock-successes, retrieved.Quantity)
	}
	if countPurchases(t, sweet.ID) != successes {
		t.Errorf("Expected %d purchase records, got %d", successes, countPurchases(t, sweet.ID))
	}
}

// Two concurrent purchases of 3 against a stock of 5: exactly one can win.
func TestExecutePurchase_ConcurrentPartialOverlap(t *testing.T) {
	ensureShopTables(t)
	sweetRepo := NewSweetRepository(testDB)
	purchaseRepo := NewPurchaseRepository(testDB)
	userID := createTestUser(t)
	ctx := context.Background()

	sweet := createTestSweet(t, sweetRepo, userID, "Marzipan Bar", "marzipan", 2.00, 5)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 3)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInsufficientStock) && !errors.Is(err, ErrTxConflict) {
			t.Errorf("Unexpected purchase error: %v", err)
		}
	}

	if successes != 1 {
		t.Fatalf("Expected exactly 1 success, got %d", successes)
	}

	retrieved, err := sweetRepo.FindByID(ctx, sweet.ID)
	if err != nil {
		t.Fatalf("Failed to find sweet: %v", err)
	}
	if retrieved.Quantity != 2 {
		t.Errorf("Expected final quantity 2, got %d", retrieved.Quantity)
	}
}

// Changing the catalog price after a purchase must not alter the recorded
// total.
func TestListByUser_PriceFreezeAndOrdering(t *testing.T) {
	ensureShopTables(t)
	sweetRepo := NewSweetRepository(testDB)
	purchaseRepo := NewPurchaseRepository(testDB)
	userID := createTestUser(t)
	ctx := context.Background()

	sweet := createTestSweet(t, sweetRepo, userID, "Truffle", "truffles", 2.00, 10)

	first, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 3)
	if err != nil {
		t.Fatalf("Failed to execute first purchase: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	// Raise the price between the two purchases
	if _, err := testDB.Exec(`UPDATE sweets SET price = 9.99 WHERE id = $1`, sweet.ID); err != nil {
		t.Fatalf("Failed to change price: %v", err)
	}

	second, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 1)
	if err != nil {
		t.Fatalf("Failed to execute second purchase: %v", err)
	}

	history, err := purchaseRepo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to list purchases: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 purchases, got %d", len(history))
	}

	// Most recent first
	if history[0].ID != second.ID || history[1].ID != first.ID {
		t.Error("Expected purchases ordered most recent first")
	}

	// The first purchase keeps the total computed at its own purchase time
	if history[1].TotalPrice != 6.00 {
		t.Errorf("Expected frozen total 6.00, got %f", history[1].TotalPrice)
	}
	// The second purchase uses the price in effect inside its transaction
	if history[0].TotalPrice != 9.99 {
		t.Errorf("Expected total 9.99, got %f", history[0].TotalPrice)
	}

	if history[0].SweetName != "Truffle" {
		t.Errorf("Expected joined sweet name, got %q", history[0].SweetName)
	}

	// Reading the ledger twice with no intervening purchase returns identical
	// ordered results
	again, err := purchaseRepo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to list purchases again: %v", err)
	}
	if len(again) != len(history) {
		t.Fatalf("Expected identical result length, got %d and %d", len(history), len(again))
	}
	for i := range history {
		if history[i].ID != again[i].ID {
			t.Errorf("Expected identical ordering at index %d", i)
		}
	}
}

// Deleting a sweet keeps its purchase records with an empty display name
func TestListByUser_DeletedSweet(t *testing.T) {
	ensureShopTables(t)
	sweetRepo := NewSweetRepository(testDB)
	purchaseRepo := NewPurchaseRepository(testDB)
	userID := createTestUser(t)
	ctx := context.Background()

	sweet := createTestSweet(t, sweetRepo, userID, "Ephemeral Drop", "drops", 0.50, 5)

	purchase, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 2)
	if err != nil {
		t.Fatalf("Failed to execute purchase: %v", err)
	}

	if err := sweetRepo.Delete(ctx, sweet.ID); err != nil {
		t.Fatalf("Failed to delete sweet: %v", err)
	}

	history, err := purchaseRepo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to list purchases: %v", err)
	}

	var found bool
	for _, detail := range history {
		if detail.ID == purchase.ID {
			found = true
			if detail.SweetName != "" {
				t.Errorf("Expected empty sweet name for deleted sweet, got %q", detail.SweetName)
			}
			if detail.TotalPrice != 1.00 {
				t.Errorf("Expected frozen total 1.00, got %f", detail.TotalPrice)
			}
		}
	}
	if !found {
		t.Error("Expected the purchase record to survive the sweet deletion")
	}
}

func TestListBySweet(t *testing.T) {
	ensureShopTables(t)
	sweetRepo := NewSweetRepository(testDB)
	purchaseRepo := NewPurchaseRepository(testDB)
	userID := createTestUser(t)
	otherUser := createTestUser(t)
	ctx := context.Background()

	sweet := createTestSweet(t, sweetRepo, userID, "Gumdrop", "drops", 0.25, 20)

	if _, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, userID, 2); err != nil {
		t.Fatalf("Failed to execute purchase: %v", err)
	}
	if _, err := purchaseRepo.ExecutePurchase(ctx, sweet.ID, otherUser, 4); err != nil {
		t.Fatalf("Failed to execute purchase: %v", err)
	}

	purchases, err := purchaseRepo.ListBySweet(ctx, sweet.ID)
	if err != nil {
		t.Fatalf("Failed to list purchases by sweet: %v", err)
	}
	if len(purchases) != 2 {
		t.Fatalf("Expected 2 purchases, got %d", len(purchases))
	}
}
