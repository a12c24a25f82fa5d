//go:build component
// +build component

package component

func (s *ComponentTestSuite) TestRegisterUser() {
	_, when, then := s.gherkin()

	when().
		aRegistrationRequestIsIssued()

	then().
		theRegistrationResponseContainsAValidUser().
		theTokenAuthenticatesTheUser().
		listUsersContainsTheUser().
		anEventForTheUserCreationWillEventuallyBeProduced()
}

func (s *ComponentTestSuite) TestReferredRegistration() {
	given, when, then := s.gherkin()

	given().
		anExistingReferrer()

	when().
		aRegistrationRequestIsIssued()

	then().
		theRegistrationResponseContainsAValidUser().
		theReferrerIsCredited().
		anEventForTheReferrerCreditWillEventuallyBeProduced()
}

func (s *ComponentTestSuite) TestRedeemWithoutEnoughPoints() {
	given, when, then := s.gherkin()

	given().
		anExistingReferrer().
		anExistingUser()

	when().
		theReferrerRedeemsTooEarly()

	then().
		theRedemptionIsRejected()
}

func (s *ComponentTestSuite) TestUpdateUser() {
	given, when, then := s.gherkin()

	given().
		anExistingUser()

	when().
		theUserGetsUpdated()

	then().
		theUpdateResponseReflectsTheUpdateOperation().
		listUsersContainsTheUser().
		anEventForTheUserUpdateWillEventuallyBeProduced()
}

func (s *ComponentTestSuite) TestDeleteUser() {
	given, when, then := s.gherkin()

	given().
		anExistingReferrer().
		anExistingUser()

	when().
		aUserDeletionRequestIsIssued()

	then().
		theUserIsGone().
		anEventForTheUserDeletionWillEventuallyBeProduced()
}
