package registry

import "finserv-applications/internal/models"

// loanSchema only pins the field the aggregator reads; everything else in a
// loan payload is opaque.
func loanSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"amount"},
		"properties": map[string]interface{}{
			"amount": map[string]interface{}{
				"type":    "integer",
				"minimum": 1,
				"maximum": models.MaxAmount,
			},
		},
	}
}

// Default is the built-in registry used when no registry file is configured.
func Default() *Registry {
	return MustNew("1.0.0",
		Entry{Category: models.CategoryPersonalLoan, Label: "Personal Loan", Group: GroupLoan, Collection: "personal_loans", AmountField: "amount", PayloadSchema: loanSchema()},
		Entry{Category: models.CategoryHomeLoan, Label: "Home Loan", Group: GroupLoan, Collection: "home_loans", AmountField: "amount", PayloadSchema: loanSchema()},
		Entry{Category: models.CategoryBusinessLoan, Label: "Business Loan", Group: GroupLoan, Collection: "business_loans", AmountField: "amount", PayloadSchema: loanSchema()},
		Entry{Category: models.CategoryEducationLoan, Label: "Education Loan", Group: GroupLoan, Collection: "education_loans", AmountField: "amount", PayloadSchema: loanSchema()},
		Entry{Category: models.CategoryVehicleLoan, Label: "Vehicle Loan", Group: GroupLoan, Collection: "vehicle_loans", AmountField: "amount", PayloadSchema: loanSchema()},

		Entry{Category: models.CategoryHealthInsurance, Label: "Health Insurance Inquiry", Group: GroupInsurance, Collection: "health_insurance_inquiries", AmountField: "coverage_amount", Anonymous: true},
		Entry{Category: models.CategoryLifeInsurance, Label: "Life Insurance Inquiry", Group: GroupInsurance, Collection: "life_insurance_inquiries", AmountField: "coverage_amount", Anonymous: true},
		Entry{Category: models.CategoryMotorInsurance, Label: "Motor Insurance Inquiry", Group: GroupInsurance, Collection: "motor_insurance_inquiries", Anonymous: true},

		Entry{Category: models.CategoryPersonalTax, Label: "Personal Tax Planning", Group: GroupTax, Collection: "tax_planning_applications", AmountField: "annual_income"},
		Entry{Category: models.CategoryCorporateTax, Label: "Corporate Tax Filing", Group: GroupTax, Collection: "corporate_tax_applications"},

		Entry{Category: models.CategoryCorporateGST, Label: "GST Registration", Group: GroupCorporate, Collection: "gst_applications", AmountField: "annual_turnover"},
		Entry{Category: models.CategoryCompanyRegistration, Label: "Company Registration", Group: GroupCorporate, Collection: "company_registrations"},
	)
}
