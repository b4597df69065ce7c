package orders

import (
	"fmt"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// transitionRoles maps each target status to the roles allowed to drive
// an order there. Allocation outcomes (allocated, partially_fulfilled)
// have no entry: only the allocation engine writes them. Payment gates
// belong to finance; shipping belongs to the warehouse.
var transitionRoles = map[Status][]shared.Role{
	StatusWaitingInvoice: {shared.RoleSuperAdmin, shared.RoleAdminFinance, shared.RoleKasir},
	StatusWaitingPayment: {shared.RoleSuperAdmin, shared.RoleAdminFinance, shared.RoleKasir},
	StatusDebtPending:    {shared.RoleSuperAdmin, shared.RoleAdminFinance, shared.RoleKasir},
	StatusReadyToShip:    {shared.RoleSuperAdmin, shared.RoleAdminFinance, shared.RoleKasir},
	StatusProcessing:     {shared.RoleSuperAdmin, shared.RoleAdminGudang},
	StatusShipped:        {shared.RoleSuperAdmin, shared.RoleAdminGudang},
	StatusDelivered:      {shared.RoleSuperAdmin, shared.RoleAdminGudang, shared.RoleDriver},
	StatusCompleted:      {shared.RoleSuperAdmin, shared.RoleAdminGudang, shared.RoleDriver},
	StatusCanceled:       {shared.RoleSuperAdmin, shared.RoleAdminFinance, shared.RoleKasir, shared.RoleCustomer},
	StatusExpired:        {shared.RoleSuperAdmin},
	StatusHold:           {shared.RoleSuperAdmin, shared.RoleAdminGudang, shared.RoleAdminFinance, shared.RoleKasir},
	StatusPending:        {shared.RoleSuperAdmin, shared.RoleAdminGudang, shared.RoleAdminFinance},
}

// authorizeTransition checks the actor's role against the target status.
func authorizeTransition(actor shared.Actor, target Status) error {
	for _, role := range transitionRoles[target] {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not move an order to %s", shared.ErrForbidden, actor.Role, target)
}
