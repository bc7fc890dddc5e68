package mapping

import domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"

// aliases lists, per target field, normalized French and English header
// spellings. An alias belongs to exactly one field.
var aliases = map[domain.Field][]string{
	domain.FieldExternalID: {
		"id", "external id", "externalid", "id externe", "identifiant", "identifiant externe",
		"ref", "reference", "ref client", "reference client", "code client", "customer id",
		"client id", "crm id", "lead id",
	},
	domain.FieldFirstName: {
		"prenom", "first name", "firstname", "given name", "forename", "prenom du contact",
	},
	domain.FieldLastName: {
		"nom", "nom de famille", "last name", "lastname", "surname", "family name", "nom du contact",
	},
	domain.FieldFullName: {
		"nom complet", "full name", "fullname", "name", "nom prenom", "prenom nom", "contact name",
	},
	domain.FieldEmail: {
		"email", "e mail", "mail", "courriel", "adresse email", "adresse e mail", "adresse mail",
		"email address", "e mail address", "mail address",
	},
	domain.FieldPhone: {
		"telephone", "tel", "phone", "phone number", "numero de telephone", "num tel", "numero",
		"portable", "mobile", "gsm", "cell", "cellphone", "telephone portable", "mobile phone",
	},
	domain.FieldCompany: {
		"societe", "entreprise", "company", "company name", "raison sociale", "organisation",
		"organization", "employeur", "nom de la societe", "business",
	},
	domain.FieldJobTitle: {
		"poste", "fonction", "job title", "jobtitle", "title", "titre", "position", "role", "intitule de poste",
	},
	domain.FieldAddress: {
		"adresse", "address", "rue", "street", "adresse postale", "street address", "voie",
	},
	domain.FieldPostalCode: {
		"code postal", "cp", "postal code", "postalcode", "zip", "zip code", "zipcode", "postcode",
	},
	domain.FieldCity: {
		"ville", "city", "commune", "localite", "town",
	},
	domain.FieldCountry: {
		"pays", "country", "nation",
	},
	domain.FieldWebsite: {
		"site web", "site", "website", "web", "url", "site internet", "web site",
	},
	domain.FieldNotes: {
		"notes", "note", "commentaire", "commentaires", "comment", "comments", "remarque",
		"remarques", "description", "observations",
	},
	domain.FieldStatus: {
		"statut", "status", "etat", "lead status", "statut du lead",
	},
	domain.FieldSource: {
		"source", "origine", "canal", "lead source", "provenance", "source du lead",
	},
	domain.FieldAssignedTo: {
		"assigne a", "assigned to", "assignee", "commercial", "owner", "responsable",
		"proprietaire", "sales rep", "conseiller",
	},
}
