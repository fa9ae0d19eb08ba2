package auctions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

var (
	ErrNotFound       = errors.New("auction not found")
	ErrLotNotFound    = errors.New("lot not found")
	ErrDuplicateLot   = errors.New("lot number already used in this auction")
	ErrUnknownVehicle = errors.New("vehicle does not exist")
	ErrTransition     = errors.New("status change not allowed")
	ErrLotClosed      = errors.New("lot is no longer open")
	ErrAuctionClosed  = errors.New("auction is closed")
)

// transitions lists the statuses an auction may move to from each status.
var transitions = map[string][]string{
	models.AuctionPlanned: {models.AuctionActive, models.AuctionCancelled},
	models.AuctionActive:  {models.AuctionCompleted, models.AuctionCancelled},
}

// sourcesOf returns the statuses from which to is reachable.
func sourcesOf(to string) []string {
	var from []string
	for src, targets := range transitions {
		for _, t := range targets {
			if t == to {
				from = append(from, src)
			}
		}
	}
	return from
}

// Repository handles auctions and their lots in the current tenant schema.
type Repository struct{}

// NewRepository creates an auctions repository.
func NewRepository() *Repository {
	return &Repository{}
}

const auctionColumns = `id, title, description, location, start_date, end_date, registration_deadline,
	registration_fee_cents, status, created_by, created_at, updated_at`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Location, &a.StartDate, &a.EndDate, &a.RegistrationDeadline,
		&a.RegistrationFeeCents, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a planned auction.
func (r *Repository) Create(ctx context.Context, a *models.Auction) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	a.Status = models.AuctionPlanned
	const q = `INSERT INTO auctions (title, description, location, start_date, end_date, registration_deadline,
		registration_fee_cents, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at`
	return db.QueryRow(ctx, q, a.Title, a.Description, a.Location, a.StartDate, a.EndDate, a.RegistrationDeadline,
		a.RegistrationFeeCents, a.Status, a.CreatedBy).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID returns one auction.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scanAuction(db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
}

// List returns auctions, latest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string) ([]models.Auction, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
		WHERE ($1 = '' OR status = $1) ORDER BY start_date DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// SetStatus moves an auction along planned -> active -> completed; planned and active auctions
// may be cancelled.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, to string) (*models.Auction, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	from := sourcesOf(to)
	if len(from) == 0 {
		return nil, ErrTransition
	}
	a, err := scanAuction(db.QueryRow(ctx, `UPDATE auctions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3) RETURNING `+auctionColumns, id, to, from))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTransition
	}
	return a, err
}

const lotColumns = `l.id, l.auction_id, l.vehicle_id, l.lot_number, l.reserve_price_cents, l.starting_bid_cents,
	l.final_bid_cents, l.valuation_fee_cents, l.advertisement_fee_cents, l.parking_fee_cents, l.other_expenses_cents,
	l.buyer_name, l.buyer_phone, l.buyer_id_number, l.status, l.notes, l.added_by, v.purchase_price_cents,
	l.created_at, l.updated_at`

func scanLot(row pgx.Row) (*models.AuctionVehicle, error) {
	var l models.AuctionVehicle
	err := row.Scan(&l.ID, &l.AuctionID, &l.VehicleID, &l.LotNumber, &l.ReservePriceCents, &l.StartingBidCents,
		&l.FinalBidCents, &l.ValuationFeeCents, &l.AdvertisementFeeCents, &l.ParkingFeeCents, &l.OtherExpensesCents,
		&l.BuyerName, &l.BuyerPhone, &l.BuyerIDNumber, &l.Status, &l.Notes, &l.AddedBy, &l.PurchasePriceCents,
		&l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLotNotFound
	}
	if err != nil {
		return nil, err
	}
	l.TotalVehicleCostCents = l.TotalVehicleCost()
	return &l, nil
}

// AddLot enters a vehicle into an auction that has not closed yet.
func (r *Repository) AddLot(ctx context.Context, l *models.AuctionVehicle) error {
	a, err := r.GetByID(ctx, l.AuctionID)
	if err != nil {
		return err
	}
	if a.Status != models.AuctionPlanned && a.Status != models.AuctionActive {
		return ErrAuctionClosed
	}
	l.Status = models.LotPending
	const q = `WITH l AS (
		INSERT INTO auction_vehicles (auction_id, vehicle_id, lot_number, reserve_price_cents, starting_bid_cents,
			valuation_fee_cents, advertisement_fee_cents, parking_fee_cents, other_expenses_cents, status, notes, added_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, vehicle_id, created_at, updated_at)
		SELECT l.id, v.purchase_price_cents, l.created_at, l.updated_at FROM l JOIN vehicles v ON v.id = l.vehicle_id`
	err = tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, l.AuctionID, l.VehicleID, l.LotNumber, l.ReservePriceCents, l.StartingBidCents,
			l.ValuationFeeCents, l.AdvertisementFeeCents, l.ParkingFeeCents, l.OtherExpensesCents, l.Status, l.Notes, l.AddedBy).
			Scan(&l.ID, &l.PurchasePriceCents, &l.CreatedAt, &l.UpdatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrDuplicateLot
			case "23503":
				return ErrUnknownVehicle
			}
		}
		return err
	})
	if err != nil {
		return err
	}
	l.TotalVehicleCostCents = l.TotalVehicleCost()
	return nil
}

// Lots returns the lots of an auction ordered by lot number.
func (r *Repository) Lots(ctx context.Context, auctionID uuid.UUID) ([]models.AuctionVehicle, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+lotColumns+` FROM auction_vehicles l JOIN vehicles v ON v.id = l.vehicle_id
		WHERE l.auction_id = $1 ORDER BY l.lot_number`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AuctionVehicle
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

// GetLot returns one lot of an auction.
func (r *Repository) GetLot(ctx context.Context, auctionID, lotID uuid.UUID) (*models.AuctionVehicle, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scanLot(db.QueryRow(ctx, `SELECT `+lotColumns+` FROM auction_vehicles l JOIN vehicles v ON v.id = l.vehicle_id
		WHERE l.auction_id = $1 AND l.id = $2`, auctionID, lotID))
}

// Sale is the outcome of selling a lot.
type Sale struct {
	FinalBidCents int64
	BuyerName     string
	BuyerPhone    string
	BuyerIDNumber string
}

// Sell closes an open lot with a winning bid and marks its vehicle sold.
func (r *Repository) Sell(ctx context.Context, auctionID, lotID uuid.UUID, s Sale) (*models.AuctionVehicle, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	var vehicleID uuid.UUID
	err = db.QueryRow(ctx, `UPDATE auction_vehicles SET final_bid_cents = $3, buyer_name = $4, buyer_phone = $5,
		buyer_id_number = $6, status = 'sold', updated_at = NOW()
		WHERE auction_id = $1 AND id = $2 AND status IN ('pending', 'approved') RETURNING vehicle_id`,
		auctionID, lotID, s.FinalBidCents, s.BuyerName, s.BuyerPhone, s.BuyerIDNumber).Scan(&vehicleID)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetLot(ctx, auctionID, lotID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrLotClosed
	}
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(ctx, `UPDATE vehicles SET status = 'sold', updated_at = NOW() WHERE id = $1`, vehicleID); err != nil {
		return nil, err
	}
	return r.GetLot(ctx, auctionID, lotID)
}

// SetLotStatus approves, withdraws or marks an open lot unsold.
func (r *Repository) SetLotStatus(ctx context.Context, auctionID, lotID uuid.UUID, status string) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `UPDATE auction_vehicles SET status = $3, updated_at = NOW()
		WHERE auction_id = $1 AND id = $2 AND status IN ('pending', 'approved')`, auctionID, lotID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetLot(ctx, auctionID, lotID); err != nil {
			return err
		}
		return ErrLotClosed
	}
	return nil
}
