// Package postgres 直接从电商库读取训练与评估数据。
//
// 表结构：
//   - "Product"(id, name, description, category, price, stock)
//   - "Cart"(id, "userId")，"CartItem"("cartId", "productId", quantity)
//   - "Order"(id, "userId", status, "createdAt")，"OrderItem"("orderId", "productId", quantity)
//   - "Review"("userId", "productId", rating)
//
// 交互一律按真实用户 ID 聚合（购物车与订单通过所属用户关联）。
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/datasource"
)

const productsQuery = `
	SELECT id::text, COALESCE(name, ''), COALESCE(description, ''), COALESCE(category, ''),
	       COALESCE(price, 0)::float8, COALESCE(stock, 0)::int
	FROM "Product"
	ORDER BY id`

const interactionsQuery = `
	SELECT c."userId"::text, ci."productId"::text, ci.quantity::float8, 'cart'
	FROM "CartItem" ci
	JOIN "Cart" c ON ci."cartId" = c.id
	UNION ALL
	SELECT o."userId"::text, oi."productId"::text, oi.quantity::float8, 'order'
	FROM "OrderItem" oi
	JOIN "Order" o ON oi."orderId" = o.id
	WHERE lower(o.status) != $1
	UNION ALL
	SELECT r."userId"::text, r."productId"::text, r.rating::float8, 'review'
	FROM "Review" r`

const recentPurchasesQuery = `
	SELECT o."userId"::text, oi."productId"::text
	FROM "Order" o
	JOIN "OrderItem" oi ON o.id = oi."orderId"
	WHERE lower(o.status) != $1
	ORDER BY o."createdAt" DESC
	LIMIT $2`

// Source 是基于 pgxpool 的 core.DataSource
type Source struct {
	db *pgxpool.Pool
}

// New 使用已有连接池创建数据源
func New(db *pgxpool.Pool) *Source {
	return &Source{db: db}
}

// Open 连接数据库并 ping
func Open(ctx context.Context, url string) (*Source, error) {
	db, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Source{db: db}, nil
}

func (s *Source) Name() string { return "postgres" }

// Close 关闭连接池
func (s *Source) Close() {
	s.db.Close()
}

func (s *Source) Products(ctx context.Context) ([]core.Product, error) {
	rows, err := s.db.Query(ctx, productsQuery)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []core.Product
	for rows.Next() {
		var p core.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (s *Source) Interactions(ctx context.Context) ([]core.Interaction, error) {
	rows, err := s.db.Query(ctx, interactionsQuery, datasource.OrderStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []core.Interaction
	for rows.Next() {
		var (
			userID, productID, kind string
			amount                  float64
		)
		if err := rows.Scan(&userID, &productID, &amount, &kind); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		interactions = append(interactions, core.NewInteraction(userID, productID, core.InteractionKind(kind), amount))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return interactions, nil
}

func (s *Source) RecentPurchases(ctx context.Context, limit int) ([]core.Purchase, error) {
	rows, err := s.db.Query(ctx, recentPurchasesQuery, datasource.OrderStatusCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent purchases: %w", err)
	}
	defer rows.Close()

	purchases, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Purchase, error) {
		var p core.Purchase
		err := row.Scan(&p.UserID, &p.ProductID)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan recent purchases: %w", err)
	}
	return purchases, nil
}
