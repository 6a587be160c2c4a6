package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) ListClients(ctx context.Context, clientIDs []string) ([]Client, error) {
	query := `
		SELECT id, name, tax_id, notes, created_at, updated_at
		FROM clients
	`
	args := []any{}
	if clientIDs != nil {
		// Empty grant list means a scoped user with access to nothing.
		if len(clientIDs) == 0 {
			return []Client{}, nil
		}
		query += ` WHERE id = ANY($1)`
		args = append(args, clientIDs)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		var item Client
		if err := rows.Scan(&item.ID, &item.Name, &item.TaxID, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (Client, error) {
	var item Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tax_id, notes, created_at, updated_at
		FROM clients
		WHERE id=$1
	`, clientID).Scan(&item.ID, &item.Name, &item.TaxID, &item.Notes, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Client{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertClient(ctx context.Context, item Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, tax_id, notes)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Name, item.TaxID, item.Notes)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateClient(ctx context.Context, item Client) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET name=$2, tax_id=$3, notes=$4, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.TaxID, item.Notes)
	if err != nil {
		return false, fmt.Errorf("update client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update client result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteClient(ctx context.Context, clientID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id=$1`, clientID)
	if err != nil {
		return false, fmt.Errorf("delete client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete client result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, clientID string) ([]Entity, error) {
	query := `
		SELECT id, client_id, name, entity_type, tax_id, created_at, updated_at
		FROM entities
	`
	args := []any{}
	if clientID != "" {
		query += ` WHERE client_id=$1`
		args = append(args, clientID)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	items := make([]Entity, 0)
	for rows.Next() {
		var item Entity
		if err := rows.Scan(&item.ID, &item.ClientID, &item.Name, &item.EntityType, &item.TaxID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, entityID string) (Entity, error) {
	var item Entity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, name, entity_type, tax_id, created_at, updated_at
		FROM entities
		WHERE id=$1
	`, entityID).Scan(&item.ID, &item.ClientID, &item.Name, &item.EntityType, &item.TaxID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Entity{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertEntity(ctx context.Context, item Entity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, client_id, name, entity_type, tax_id)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.ClientID, item.Name, item.EntityType, item.TaxID)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, item Entity) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET name=$2, entity_type=$3, tax_id=$4, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.EntityType, item.TaxID)
	if err != nil {
		return false, fmt.Errorf("update entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update entity result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteEntity(ctx context.Context, entityID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id=$1`, entityID)
	if err != nil {
		return false, fmt.Errorf("delete entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entity result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListMovements(ctx context.Context, entityID string) ([]Movement, error) {
	query := `
		SELECT id, entity_id, title, description, movement_date, created_by, created_at, updated_at
		FROM movements
	`
	args := []any{}
	if entityID != "" {
		query += ` WHERE entity_id=$1`
		args = append(args, entityID)
	}
	query += ` ORDER BY movement_date DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	items := make([]Movement, 0)
	for rows.Next() {
		var item Movement
		if err := rows.Scan(&item.ID, &item.EntityID, &item.Title, &item.Description, &item.MovementDate, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMovement(ctx context.Context, movementID string) (Movement, error) {
	var item Movement
	err := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, title, description, movement_date, created_by, created_at, updated_at
		FROM movements
		WHERE id=$1
	`, movementID).Scan(&item.ID, &item.EntityID, &item.Title, &item.Description, &item.MovementDate, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Movement{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertMovement(ctx context.Context, item Movement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO movements (id, entity_id, title, description, movement_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.EntityID, item.Title, item.Description, item.MovementDate, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMovement(ctx context.Context, item Movement) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE movements
		SET title=$2, description=$3, movement_date=$4, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Description, item.MovementDate)
	if err != nil {
		return false, fmt.Errorf("update movement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update movement result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteMovement(ctx context.Context, movementID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM movements WHERE id=$1`, movementID)
	if err != nil {
		return false, fmt.Errorf("delete movement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete movement result: %w", err)
	}
	return affected > 0, nil
}

// EntityClientID resolves which client an entity belongs to, for access scoping.
func (s *PostgresStore) EntityClientID(ctx context.Context, entityID string) (string, error) {
	var clientID string
	err := s.db.QueryRowContext(ctx, `SELECT client_id FROM entities WHERE id=$1`, entityID).Scan(&clientID)
	if err != nil {
		return "", err
	}
	return clientID, nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (clients int, entities int, documents int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM clients),
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM documents)
	`).Scan(&clients, &entities, &documents)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("summary counts: %w", err)
	}
	return clients, entities, documents, nil
}
