package order_api

import (
	"ms-ordering/internal/auth"
	"ms-ordering/internal/models"
)

// canViewOrder: staff see their organization's orders (and only their branch
// when the token is branch-scoped); customer devices see orders of their own session.
func canViewOrder(id auth.Identity, o *models.Order) bool {
	if id.Staff {
		if id.OrganizationID != "" && id.OrganizationID != o.OrganizationID {
			return false
		}
		return branchAllowed(id, o.BranchID)
	}
	return id.SessionID != "" && id.SessionID == o.TableSessionID
}

func branchAllowed(id auth.Identity, branchID string) bool {
	return id.BranchID == "" || id.BranchID == branchID
}
